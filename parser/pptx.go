package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// PPTXParser emits one fragment per slide, containing the slide's shape
// text plus its speaker notes (if any). Empty slides are dropped.
type PPTXParser struct{}

func (p *PPTXParser) Extensions() []string { return []string{"pptx", "ppt"} }

func (p *PPTXParser) Parse(ctx context.Context, path, filename string) ([]Fragment, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening PPTX: %w", err)
	}
	defer r.Close()

	fileIndex := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileIndex[f.Name] = f
	}

	slideFiles := make(map[int]*zip.File)
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			if num := extractSlideNumber(f.Name); num > 0 {
				slideFiles[num] = f
			}
		}
	}

	nums := make([]int, 0, len(slideFiles))
	for n := range slideFiles {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var fragments []Fragment
	for _, num := range nums {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := readZipFile(slideFiles[num])
		if err != nil {
			continue
		}

		text := extractPPTXSlideText(data)
		notes := extractPPTXNotes(fileIndex, num)

		combined := text
		if notes != "" {
			if combined != "" {
				combined += "\n\nNotes: " + notes
			} else {
				combined = "Notes: " + notes
			}
		}
		if strings.TrimSpace(combined) == "" {
			continue
		}

		fragments = append(fragments, Fragment{
			Text:           combined,
			SourceLocation: "Slide " + strconv.Itoa(num),
			Metadata: map[string]string{
				"doc_type":    "powerpoint",
				"page_number": strconv.Itoa(num),
				"chunk_index": "0",
			},
		})
	}

	return fragments, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func extractPPTXNotes(fileIndex map[string]*zip.File, slideNum int) string {
	f := fileIndex[fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", slideNum)]
	if f == nil {
		return ""
	}
	data, err := readZipFile(f)
	if err != nil {
		return ""
	}
	return extractPPTXSlideText(data)
}

// pptxSlide is a simplified XML structure shared by slideN.xml and
// notesSlideN.xml — both carry their text inside a:p/a:r/a:t runs.
type pptxSlide struct {
	CSld struct {
		SpTree struct {
			SPs []pptxSP `xml:"sp"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

type pptxSP struct {
	TxBody *pptxTxBody `xml:"txBody"`
}

type pptxTxBody struct {
	Paras []pptxAPara `xml:"p"`
}

type pptxAPara struct {
	Runs []pptxARun `xml:"r"`
}

type pptxARun struct {
	Text string `xml:"t"`
}

func extractPPTXSlideText(data []byte) string {
	var slide pptxSlide
	if err := xml.Unmarshal(data, &slide); err != nil {
		return ""
	}

	var parts []string
	for _, sp := range slide.CSld.SpTree.SPs {
		if sp.TxBody == nil {
			continue
		}
		for _, para := range sp.TxBody.Paras {
			var line strings.Builder
			for _, run := range para.Runs {
				line.WriteString(run.Text)
			}
			if t := strings.TrimSpace(line.String()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func extractSlideNumber(name string) int {
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	var num int
	fmt.Sscanf(name, "%d", &num)
	return num
}
