// Package embedclient batches and fans texts out to an embedding Provider
// with bounded concurrency and retry.
package embedclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/regdocs/ragcore/llm"
)

const (
	// batchSize is the maximum number of texts sent in a single embedding
	// call.
	batchSize = 1024
	// defaultConcurrency bounds the number of in-flight batch calls.
	defaultConcurrency = 8
	// batchRetries is the number of retries attempted per batch beyond the
	// initial call.
	batchRetries = 2
)

// BatchError reports the failure of one embedding batch after retries.
type BatchError struct {
	BatchIndex int
	Reason     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedclient: batch %d failed: %v", e.BatchIndex, e.Reason)
}

func (e *BatchError) Unwrap() error { return e.Reason }

// Client embeds large batches of text against an llm.Provider, splitting
// into provider-sized batches and fanning them out with bounded
// concurrency.
type Client struct {
	provider    llm.Provider
	concurrency int
}

// New returns a Client. concurrency<=0 falls back to the default fan-out
// cap of 8 concurrent in-flight batch calls.
func New(provider llm.Provider, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Client{provider: provider, concurrency: concurrency}
}

// EmbedBatch embeds every text in texts, splitting into batches of at most
// 1024 and embedding up to `concurrency` batches concurrently. The
// returned vectors preserve the order of texts. The first batch failure
// (after retries) aborts the whole call and is returned as *BatchError.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batches := splitBatches(texts, batchSize)
	results := make([][][]float32, len(batches))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		sem     = make(chan struct{}, c.concurrency)
		firstErr error
	)

	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				if firstErr == nil {
					firstErr = &BatchError{BatchIndex: i, Reason: ctx.Err()}
				}
				mu.Unlock()
				return
			}

			vecs, err := c.embedBatchWithRetry(ctx, i, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[i] = vecs
		}(i, batch)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := make([][]float32, 0, len(texts))
	for _, vecs := range results {
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatchWithRetry(ctx context.Context, batchIndex int, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= batchRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &BatchError{BatchIndex: batchIndex, Reason: ctx.Err()}
			}
		}
		vecs, err := c.provider.Embed(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
	}
	return nil, &BatchError{BatchIndex: batchIndex, Reason: lastErr}
}

func splitBatches(texts []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
