package regulatory

import (
	"context"
	"errors"
	"testing"

	"github.com/regdocs/ragcore/index"
	"github.com/regdocs/ragcore/llm"
	"github.com/regdocs/ragcore/rag"
)

type fakeProvider struct {
	vec     []float32
	tokens  []string
	chatErr error
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(tokens)
		defer close(errs)
		if f.chatErr != nil {
			errs <- f.chatErr
			return
		}
		for _, t := range f.tokens {
			tokens <- t
		}
	}()
	return tokens, errs
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vec := f.vec
	if vec == nil {
		vec = []float32{1, 0}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = vec
	}
	return out, nil
}

type fakeSearcher struct {
	results []index.Result
	err     error
}

func (f *fakeSearcher) Search(queryVector []float32, k int) ([]index.Result, error) {
	return f.results, f.err
}

func TestRegulatoryScoreCapsAtOne(t *testing.T) {
	meta := map[string]string{"regulatory_type": "corep_template", "doc_type": "excel", "source_location": "Sheet 'COREP_C_01'"}
	content := "basel corep finrep capital liquidity lcr nsfr cet1 tier 1 total capital risk weight exposure regulatory compliance reporting calculation template"
	score := regulatoryScore(content, "corep capital", meta)
	if score != 1.0 {
		t.Errorf("score = %v, want 1.0 (capped)", score)
	}
}

func TestRegulatoryScoreZeroForIrrelevantContent(t *testing.T) {
	score := regulatoryScore("the weather today is sunny", "weather", map[string]string{})
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
}

func TestFilterByDocTypeDropsNonMatching(t *testing.T) {
	results := []index.Result{
		{Metadata: map[string]string{"doc_type": "pdf"}},
		{Metadata: map[string]string{"doc_type": "excel"}},
	}
	got := filterByDocType(results, []string{"pdf"})
	if len(got) != 1 || got[0].Metadata["doc_type"] != "pdf" {
		t.Fatalf("got %+v, want only pdf", got)
	}
}

func TestFilterByDocTypeEmptyWhitelistKeepsAll(t *testing.T) {
	results := []index.Result{{Metadata: map[string]string{"doc_type": "pdf"}}}
	got := filterByDocType(results, nil)
	if len(got) != 1 {
		t.Fatalf("got %d, want 1", len(got))
	}
}

func TestMatchesPrioritySource(t *testing.T) {
	if !matchesPrioritySource("COREP_Template.xlsx", []string{"corep"}) {
		t.Error("expected case-insensitive substring match")
	}
	if matchesPrioritySource("random.pdf", []string{"corep"}) {
		t.Error("expected no match")
	}
}

func TestNormalizeRoleFallsBackToGeneral(t *testing.T) {
	if normalizeRole("unknown_role") != RoleGeneral {
		t.Error("unknown roles should fall back to general")
	}
	if normalizeRole("analyst") != RoleAnalyst {
		t.Error("known role should pass through")
	}
}

func TestCitationFormatsPerDocType(t *testing.T) {
	cases := []struct {
		meta map[string]string
		want string
	}{
		{map[string]string{"filename": "a.pdf", "doc_type": "pdf", "source_location": "Page 3"}, "Source: a.pdf, Page 3"},
		{map[string]string{"filename": "b.pptx", "doc_type": "powerpoint", "source_location": "Slide 5"}, "Source: b.pptx, Slide 5"},
		{map[string]string{"filename": "corep.xlsx", "doc_type": "excel", "sheet_name": "C_01", "source_location": "Sheet: C_01"}, "Source: corep.xlsx, Sheet 'C_01'"},
		{map[string]string{"filename": "c.py", "doc_type": "code", "language": "python"}, "Source: c.py (python)"},
		{map[string]string{"filename": "d.sql", "doc_type": "code", "language": "sql", "line_count": "42"}, "Source: d.sql (sql, 42 lines)"},
	}
	for _, c := range cases {
		if got := Citation(c.meta); got != c.want {
			t.Errorf("Citation(%+v) = %q, want %q", c.meta, got, c.want)
		}
	}
}

func TestGroupByDocTypePreservesFirstSeenOrder(t *testing.T) {
	results := []index.Result{
		{Metadata: map[string]string{"doc_type": "excel"}},
		{Metadata: map[string]string{"doc_type": "pdf"}},
		{Metadata: map[string]string{"doc_type": "excel"}},
	}
	order, grouped := GroupByDocType(results)
	if len(order) != 2 || order[0] != "excel" || order[1] != "pdf" {
		t.Fatalf("order = %v, want [excel pdf]", order)
	}
	if len(grouped["excel"]) != 2 {
		t.Errorf("grouped[excel] has %d entries, want 2", len(grouped["excel"]))
	}
}

func TestRunFallsBackOnSearchError(t *testing.T) {
	embedder := &fakeProvider{}
	chatter := &fakeProvider{tokens: []string{"fallback answer"}}
	failingSearcher := &fakeSearcher{err: errors.New("index unavailable")}
	base := rag.New(embedder, chatter, failingSearcher, "gpt-4o-mini")

	e := New(base, failingSearcher)
	result := e.Run(context.Background(), "what is CET1?", Options{})
	if !result.Fallback {
		t.Fatal("expected Fallback=true when retrieval fails")
	}
	for range result.Paragraphs {
	}
}

func TestRunNoResultsReturnsCannedRegulatoryMessage(t *testing.T) {
	embedder := &fakeProvider{}
	chatter := &fakeProvider{}
	searcher := &fakeSearcher{}
	base := rag.New(embedder, chatter, searcher, "gpt-4o-mini")

	e := New(base, searcher)
	result := e.Run(context.Background(), "what is CET1?", Options{})

	var got []string
	for p := range result.Paragraphs {
		got = append(got, p)
	}
	if len(got) != 1 {
		t.Fatalf("got %v, want one canned message", got)
	}
}
