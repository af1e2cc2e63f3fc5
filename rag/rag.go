// Package rag implements the RAG Orchestrator: embed a query, retrieve
// chunks from the Knowledge Base, format grounded context, and stream a
// chat completion back to the caller.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/regdocs/ragcore/index"
	"github.com/regdocs/ragcore/llm"
)

// noRelevantInfoMessage is returned verbatim when retrieval yields nothing.
const noRelevantInfoMessage = "I couldn't find any relevant information in the knowledge base to answer this question."

const defaultSystemPrompt = "You are a helpful assistant that answers questions using only the provided document context. " +
	"If the context does not contain the answer, say so plainly rather than guessing."

// Searcher is the subset of the Knowledge Base the Orchestrator depends on.
type Searcher interface {
	Search(queryVector []float32, k int) ([]index.Result, error)
}

// Orchestrator ties an embedding provider, a chat provider, and a
// Searcher together into the retrieve-then-generate flow.
type Orchestrator struct {
	Embedder llm.Provider
	Chatter  llm.Provider
	KB       Searcher
	Model    string

	// SystemPrompt overrides the default grounded-assistant prompt; the
	// Regulatory Enhancer supplies its own role-conditioned prompt here.
	SystemPrompt string
}

// New returns an Orchestrator with the default system prompt.
func New(embedder, chatter llm.Provider, kb Searcher, model string) *Orchestrator {
	return &Orchestrator{Embedder: embedder, Chatter: chatter, KB: kb, Model: model, SystemPrompt: defaultSystemPrompt}
}

// Run embeds query, retrieves up to k chunks, and streams the generated
// answer as paragraph-sized strings on the returned channel. The error
// channel carries at most one value. Both channels close when generation
// completes or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, query string, k int) (<-chan string, <-chan error) {
	paragraphs := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(paragraphs)
		defer close(errs)

		vectors, err := o.Embedder.Embed(ctx, []string{query})
		if err != nil {
			errs <- fmt.Errorf("rag: embedding query: %w", err)
			return
		}
		if len(vectors) == 0 {
			errs <- fmt.Errorf("rag: embedding query: no vector returned")
			return
		}

		results, err := o.KB.Search(vectors[0], k)
		if err != nil {
			errs <- fmt.Errorf("rag: searching knowledge base: %w", err)
			return
		}
		if len(results) == 0 {
			select {
			case paragraphs <- noRelevantInfoMessage:
			case <-ctx.Done():
			}
			return
		}

		contextBlock := FormatContext(results)
		messages := []llm.Message{
			{Role: "system", Content: o.systemPrompt()},
			{Role: "user", Content: buildUserMessage(query, contextBlock)},
		}

		o.relay(ctx, messages, paragraphs, errs)
	}()

	return paragraphs, errs
}

// RunDirect streams a chat completion for query with no retrieval step,
// for callers that want a plain conversational endpoint alongside the
// grounded one.
func (o *Orchestrator) RunDirect(ctx context.Context, query string) (<-chan string, <-chan error) {
	paragraphs := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(paragraphs)
		defer close(errs)
		messages := []llm.Message{
			{Role: "system", Content: o.systemPrompt()},
			{Role: "user", Content: query},
		}
		o.relay(ctx, messages, paragraphs, errs)
	}()

	return paragraphs, errs
}

func (o *Orchestrator) systemPrompt() string {
	if o.SystemPrompt != "" {
		return o.SystemPrompt
	}
	return defaultSystemPrompt
}

func buildUserMessage(query, context string) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nContext from documents:\n")
	b.WriteString(context)
	b.WriteString("\n\nAnswer the question using only the context above.")
	return b.String()
}

// FormatContext formats retrieved chunks into a context block: one
// section per chunk prefixed with "[Source: <filename>]" on its own
// line, sections separated by "\n\n---\n\n".
func FormatContext(results []index.Result) string {
	sections := make([]string, 0, len(results))
	for _, r := range results {
		filename := r.Metadata["filename"]
		sections = append(sections, fmt.Sprintf("[Source: %s]\n%s", filename, r.Text))
	}
	return strings.Join(sections, "\n\n---\n\n")
}

// relay issues a streaming chat completion and buffers SSE token deltas
// into paragraphs, flushing on a blank-line boundary or stream end.
func (o *Orchestrator) relay(ctx context.Context, messages []llm.Message, paragraphs chan<- string, errs chan<- error) {
	tokens, tokenErrs := o.Chatter.ChatStream(ctx, llm.ChatRequest{Model: o.Model, Messages: messages})

	var buf strings.Builder
	flush := func() bool {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return true
		}
		select {
		case paragraphs <- text:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case tok, ok := <-tokens:
			if !ok {
				flush()
				if err, ok := <-tokenErrs; ok && err != nil {
					errs <- err
				}
				return
			}
			buf.WriteString(tok)
			if i := strings.LastIndex(buf.String(), "\n\n"); i >= 0 {
				done, rest := buf.String()[:i], buf.String()[i+2:]
				buf.Reset()
				for _, p := range strings.Split(done, "\n\n") {
					buf.WriteString(p)
					if !flush() {
						return
					}
				}
				buf.WriteString(rest)
			}
		case <-ctx.Done():
			return
		}
	}
}
