package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/regdocs/ragcore/index"
	"github.com/regdocs/ragcore/llm"
)

type fakeProvider struct {
	embedVec []float32
	tokens   []string
	chatErr  error
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
		for _, tok := range f.tokens {
			select {
			case tokens <- tok:
			case <-ctx.Done():
				return
			}
		}
	}()
	return tokens, errs
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vec := f.embedVec
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

func TestRunReturnsCannedMessageWhenNoResults(t *testing.T) {
	o := New(&fakeProvider{}, &fakeProvider{}, &fakeSearcher{}, "gpt-4o-mini")
	paragraphs, errs := o.Run(context.Background(), "what is CET1?", 3)

	var got []string
	for p := range paragraphs {
		got = append(got, p)
	}
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !strings.Contains(got[0], "couldn't find") {
		t.Fatalf("got %v, want canned no-results message", got)
	}
}

func TestRunStreamsParagraphsFromChatTokens(t *testing.T) {
	chatter := &fakeProvider{tokens: []string{"Hello ", "world.\n\n", "Second ", "paragraph."}}
	embedder := &fakeProvider{}
	searcher := &fakeSearcher{results: []index.Result{
		{Text: "CET1 must be at least 4.5%.", Metadata: map[string]string{"filename": "basel.pdf"}},
	}}

	o := New(embedder, chatter, searcher, "gpt-4o-mini")
	paragraphs, errs := o.Run(context.Background(), "what is CET1?", 3)

	var got []string
	for p := range paragraphs {
		got = append(got, p)
	}
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d paragraphs, want 2: %v", len(got), got)
	}
	if got[0] != "Hello world." {
		t.Errorf("paragraph[0] = %q", got[0])
	}
	if got[1] != "Second paragraph." {
		t.Errorf("paragraph[1] = %q", got[1])
	}
}

func TestRunDirectSkipsRetrieval(t *testing.T) {
	chatter := &fakeProvider{tokens: []string{"Plain answer.\n\n"}}
	searcher := &fakeSearcher{err: errors.New("should never be called")}
	o := New(&fakeProvider{}, chatter, searcher, "gpt-4o-mini")

	paragraphs, errs := o.RunDirect(context.Background(), "hello")
	var got []string
	for p := range paragraphs {
		got = append(got, p)
	}
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Plain answer." {
		t.Fatalf("got %v, want one paragraph", got)
	}
}

func TestFormatContextPrefixesSourceAndSeparatesSections(t *testing.T) {
	results := []index.Result{
		{Text: "alpha", Metadata: map[string]string{"filename": "a.pdf"}},
		{Text: "beta", Metadata: map[string]string{"filename": "b.pdf"}},
	}
	got := FormatContext(results)
	want := "[Source: a.pdf]\nalpha\n\n---\n\n[Source: b.pdf]\nbeta"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunPropagatesEmbeddingSearchError(t *testing.T) {
	o := New(&fakeProvider{}, &fakeProvider{}, &fakeSearcher{err: errors.New("kb not ready")}, "gpt-4o-mini")
	paragraphs, errs := o.Run(context.Background(), "q", 3)

	for range paragraphs {
	}
	if err := <-errs; err == nil {
		t.Fatal("expected search error to propagate")
	}
}

func TestRunPropagatesChatStreamError(t *testing.T) {
	chatter := &fakeProvider{chatErr: errors.New("upstream 500")}
	searcher := &fakeSearcher{results: []index.Result{{Text: "x", Metadata: map[string]string{"filename": "a.pdf"}}}}
	o := New(&fakeProvider{}, chatter, searcher, "gpt-4o-mini")

	paragraphs, errs := o.Run(context.Background(), "q", 3)
	for range paragraphs {
	}
	if err := <-errs; err == nil {
		t.Fatal("expected chat stream error to propagate")
	}
}
