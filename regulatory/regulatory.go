// Package regulatory wraps the RAG Orchestrator with banking-regulatory
// domain behavior: role-conditioned prompting, relevance re-ranking,
// document-type/priority-source filtering, and grouped citations.
//
// The keyword list, scoring weights, and per-role guidance below are
// ported in substance (not literal prose) from the Python reference
// implementation this spec's regulatory behavior was distilled from; no
// analogous component exists in the Go corpus this service otherwise
// follows.
package regulatory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/regdocs/ragcore/index"
	"github.com/regdocs/ragcore/rag"
)

// regulatoryKeywords score both retrieved content and the query itself.
var regulatoryKeywords = []string{
	"basel", "corep", "finrep", "capital", "liquidity", "lcr", "nsfr",
	"cet1", "tier 1", "total capital", "risk weight", "exposure",
	"regulatory", "compliance", "reporting", "calculation", "template",
}

// highValueRegulatoryTypes get the largest regulatory_type boost.
var highValueRegulatoryTypes = map[string]bool{
	"corep_template": true, "finrep_template": true, "basel_document": true,
}

// midValueRegulatoryTypes get a smaller regulatory_type boost.
var midValueRegulatoryTypes = map[string]bool{
	"regulatory_calculation": true, "data_lineage": true,
}

var excelRegulatorySheetTerms = []string{"corep", "finrep", "capital", "liquidity"}

// Role is a user role the system prompt and guidance are conditioned on.
type Role string

const (
	RoleAnalyst          Role = "analyst"
	RoleDataEngineer     Role = "data_engineer"
	RoleProgrammeManager Role = "programme_manager"
	RoleGeneral          Role = "general"
)

func normalizeRole(role string) Role {
	switch Role(role) {
	case RoleAnalyst, RoleDataEngineer, RoleProgrammeManager:
		return Role(role)
	default:
		return RoleGeneral
	}
}

// Enhancer wraps an *rag.Orchestrator with regulatory re-ranking, filters,
// and role-conditioned prompting. On any enhancer-specific failure it
// falls back to the base Orchestrator. Typed citations are available
// through Citation and GroupByDocType; Run does not apply them, and the
// context it sends to the model cites each chunk by filename only.
type Enhancer struct {
	Base *rag.Orchestrator
	KB   rag.Searcher
}

// New returns an Enhancer wrapping base, reading from the same Searcher.
func New(base *rag.Orchestrator, kb rag.Searcher) *Enhancer {
	return &Enhancer{Base: base, KB: kb}
}

// Options configures one regulatory query.
type Options struct {
	Role            string
	K               int
	DocTypes        []string
	PrioritySources []string
}

// Result is returned by Run: either regulatory-enhanced, or a Fallback
// flag set when the enhancer degraded to the base Orchestrator.
type Result struct {
	Paragraphs <-chan string
	Errs       <-chan error
	Fallback   bool
}

// Run retrieves and re-ranks chunks for query and streams a regulatory,
// role-conditioned response. Any error during the enhancer's own
// retrieval (query embedding or knowledge-base search) causes a fallback
// to the base Orchestrator with Result.Fallback set to true.
func (e *Enhancer) Run(ctx context.Context, query string, opts Options) Result {
	k := opts.K
	if k <= 0 {
		k = 4
	}

	results, err := e.retrieveAndRank(ctx, query, k, opts)
	if err != nil {
		paragraphs, errs := e.Base.Run(ctx, query, k)
		return Result{Paragraphs: paragraphs, Errs: errs, Fallback: true}
	}

	if len(results) == 0 {
		paragraphs := make(chan string, 1)
		errs := make(chan error, 1)
		paragraphs <- "I couldn't find relevant regulatory documents to answer your question. " +
			"Please ensure you have uploaded the appropriate regulatory templates, frameworks, or documentation."
		close(paragraphs)
		close(errs)
		return Result{Paragraphs: paragraphs, Errs: errs}
	}

	role := normalizeRole(opts.Role)
	orch := &rag.Orchestrator{
		Embedder:     e.Base.Embedder,
		Chatter:      e.Base.Chatter,
		KB:           fixedResultSearcher{results: results},
		Model:        e.Base.Model,
		SystemPrompt: systemPrompt(role),
	}
	paragraphs, errs := orch.Run(ctx, query, k)
	return Result{Paragraphs: paragraphs, Errs: errs}
}

// fixedResultSearcher adapts a precomputed, re-ranked result set into the
// rag.Searcher interface so the base Orchestrator's Run can be reused
// verbatim for generation after the enhancer has already done retrieval.
type fixedResultSearcher struct{ results []index.Result }

func (s fixedResultSearcher) Search(queryVector []float32, k int) ([]index.Result, error) {
	if k < len(s.results) {
		return s.results[:k], nil
	}
	return s.results, nil
}

// retrieveAndRank over-fetches 2k results, applies doc_type/priority
// filtering and the regulatory_score re-rank, and returns the top k.
func (e *Enhancer) retrieveAndRank(ctx context.Context, query string, k int, opts Options) ([]index.Result, error) {
	vectors, err := e.Base.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("regulatory: embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("regulatory: embedding query: no vector returned")
	}

	fetched, err := e.KB.Search(vectors[0], 2*k)
	if err != nil {
		return nil, fmt.Errorf("regulatory: searching knowledge base: %w", err)
	}

	filtered := filterByDocType(fetched, opts.DocTypes)

	type scoredResult struct {
		index.Result
		final float64
	}
	scored := make([]scoredResult, 0, len(filtered))
	for _, r := range filtered {
		cosine := r.Score
		if matchesPrioritySource(r.Metadata["filename"], opts.PrioritySources) {
			cosine *= 1.5
		}
		regScore := regulatoryScore(r.Text, query, r.Metadata)
		scored = append(scored, scoredResult{Result: r, final: 0.7*cosine + 0.3*regScore})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].final > scored[j].final })

	if k > len(scored) {
		k = len(scored)
	}
	out := make([]index.Result, k)
	for i := 0; i < k; i++ {
		out[i] = scored[i].Result
	}
	return out, nil
}

func filterByDocType(results []index.Result, docTypes []string) []index.Result {
	if len(docTypes) == 0 {
		return results
	}
	allowed := make(map[string]bool, len(docTypes))
	for _, t := range docTypes {
		allowed[t] = true
	}
	out := make([]index.Result, 0, len(results))
	for _, r := range results {
		if allowed[r.Metadata["doc_type"]] {
			out = append(out, r)
		}
	}
	return out
}

func matchesPrioritySource(filename string, priority []string) bool {
	lower := strings.ToLower(filename)
	for _, p := range priority {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// regulatoryScore computes the additive regulatory relevance signal in
// [0,1]: +0.1 per keyword hit in content, +0.2 per keyword hit in query,
// +0.3 for the highest-value regulatory_type tags, +0.2 for mid-value
// tags, +0.2 for an Excel sheet whose name names a regulatory template.
func regulatoryScore(content, query string, metadata map[string]string) float64 {
	score := 0.0
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)

	for _, kw := range regulatoryKeywords {
		if strings.Contains(lowerContent, kw) {
			score += 0.1
		}
		if strings.Contains(lowerQuery, kw) {
			score += 0.2
		}
	}

	regType := metadata["regulatory_type"]
	switch {
	case highValueRegulatoryTypes[regType]:
		score += 0.3
	case midValueRegulatoryTypes[regType]:
		score += 0.2
	}

	if metadata["doc_type"] == "excel" {
		sourceLocation := strings.ToLower(metadata["source_location"])
		for _, term := range excelRegulatorySheetTerms {
			if strings.Contains(sourceLocation, term) {
				score += 0.2
				break
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// systemPrompt returns the regulatory-domain system prompt with
// role-specific guidance appended. Unknown roles fall back to general.
func systemPrompt(role Role) string {
	return regulatoryPreamble + "\n\nUSER ROLE GUIDANCE:\n" + roleGuidance(role)
}

const regulatoryPreamble = `You are a specialized regulatory reporting assistant for banking institutions.
You have deep knowledge of Basel III capital and liquidity frameworks, COREP and FINREP
reporting templates, EBA guidelines, and CRD IV/CRR. When citing sources, use the precise
source location provided in the context (page, sheet, slide, or line range). If the provided
context does not contain sufficient information, say so plainly and name what documentation
would be needed.`

func roleGuidance(role Role) string {
	switch role {
	case RoleAnalyst:
		return "As a regulatory analyst, prioritize detailed explanations of calculations and " +
			"methodologies, step-by-step breakdowns of reporting requirements, and validation of " +
			"regulatory interpretations."
	case RoleDataEngineer:
		return "As a data engineer, prioritize technical implementation details, data lineage, " +
			"calculation logic and business rules, and data quality checks relevant to regulatory " +
			"reporting pipelines."
	case RoleProgrammeManager:
		return "As a programme manager, prioritize high-level project impact, resource and timeline " +
			"considerations, cross-functional dependencies, and risk assessment."
	default:
		return "Provide clear, accessible explanations of regulatory concepts and practical guidance " +
			"for day-to-day regulatory tasks."
	}
}

// Citation renders a typed source citation for one retrieved chunk,
// matching the per-doc_type citation formats the reference implementation
// produces.
func Citation(metadata map[string]string) string {
	filename := metadata["filename"]
	switch metadata["doc_type"] {
	case "pdf":
		return fmt.Sprintf("Source: %s, %s", filename, locationOrDefault(metadata, "Page 1"))
	case "excel":
		sheet := metadata["sheet_name"]
		if sheet == "" {
			sheet = "unknown"
		}
		return fmt.Sprintf("Source: %s, Sheet '%s'", filename, sheet)
	case "powerpoint":
		return fmt.Sprintf("Source: %s, %s", filename, locationOrDefault(metadata, "Slide 1"))
	case "code":
		lang := metadata["language"]
		lines := metadata["line_count"]
		switch {
		case lang != "" && lines != "":
			return fmt.Sprintf("Source: %s (%s, %s lines)", filename, lang, lines)
		case lang != "":
			return fmt.Sprintf("Source: %s (%s)", filename, lang)
		default:
			return fmt.Sprintf("Source: %s", filename)
		}
	default:
		return fmt.Sprintf("Source: %s", filename)
	}
}

func locationOrDefault(metadata map[string]string, def string) string {
	if loc := metadata["source_location"]; loc != "" {
		return loc
	}
	return def
}

// GroupByDocType groups results by metadata["doc_type"], preserving the
// input order of first appearance for deterministic output.
func GroupByDocType(results []index.Result) ([]string, map[string][]index.Result) {
	grouped := make(map[string][]index.Result)
	var order []string
	for _, r := range results {
		dt := r.Metadata["doc_type"]
		if dt == "" {
			dt = "unknown"
		}
		if _, seen := grouped[dt]; !seen {
			order = append(order, dt)
		}
		grouped[dt] = append(grouped[dt], r)
	}
	return order, grouped
}
