package embedclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/regdocs/ragcore/llm"
)

type fakeProvider struct {
	calls       int32
	maxInFlight int32
	inFlight    int32
	mu          sync.Mutex
	failTimes   int // fail this many times before succeeding
	attempts    int
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan string, <-chan error) {
	return nil, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		old := atomic.LoadInt32(&f.maxInFlight)
		if n <= old || atomic.CompareAndSwapInt32(&f.maxInFlight, old, n) {
			break
		}
	}

	f.mu.Lock()
	f.attempts++
	shouldFail := f.attempts <= f.failTimes
	f.mu.Unlock()
	if shouldFail {
		return nil, errors.New("transient failure")
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	fp := &fakeProvider{}
	c := New(fp, 4)

	texts := make([]string, 2500)
	for i := range texts {
		texts[i] = "x"
	}

	vecs, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	// fakeProvider encodes each text's position within its batch.
	for i, v := range vecs {
		if v[0] != float32(i%batchSize) {
			t.Fatalf("vecs[%d] = %v, want [%d]", i, v, i%batchSize)
		}
	}
}

func TestEmbedBatchSplitsAtBatchSize(t *testing.T) {
	fp := &fakeProvider{}
	c := New(fp, 8)

	texts := make([]string, batchSize+1)
	for i := range texts {
		texts[i] = "x"
	}
	if _, err := c.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatal(err)
	}
	if fp.calls != 2 {
		t.Errorf("calls = %d, want 2 batches for %d texts", fp.calls, len(texts))
	}
}

func TestEmbedBatchRespectsConcurrencyCap(t *testing.T) {
	fp := &fakeProvider{}
	c := New(fp, 2)

	texts := make([]string, batchSize*10)
	for i := range texts {
		texts[i] = "x"
	}
	if _, err := c.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatal(err)
	}
	if fp.maxInFlight > 2 {
		t.Errorf("maxInFlight = %d, want <= 2", fp.maxInFlight)
	}
}

func TestEmbedBatchRetriesTransientFailure(t *testing.T) {
	fp := &fakeProvider{failTimes: 1}
	c := New(fp, 1)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
}

func TestEmbedBatchFailsAfterRetriesExhausted(t *testing.T) {
	fp := &fakeProvider{failTimes: 100}
	c := New(fp, 1)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected BatchError after exhausting retries")
	}
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Errorf("error = %v, want *BatchError", err)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	fp := &fakeProvider{}
	c := New(fp, 1)
	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", vecs, err)
	}
}
