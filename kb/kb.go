// Package kb implements the process-wide Knowledge Base: a lifecycle
// manager around a single index.Index that seeds from an embedded
// preloaded snapshot and layers user uploads on top.
package kb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/regdocs/ragcore/embedclient"
	"github.com/regdocs/ragcore/index"
)

// State is a lifecycle state of the Knowledge Base.
type State int

const (
	Uninitialized State = iota
	Seeding
	Ready
	Updating
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Seeding:
		return "seeding"
	case Ready:
		return "ready"
	case Updating:
		return "updating"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var (
	// ErrProtectedDocument is returned on an attempt to remove a preloaded
	// document.
	ErrProtectedDocument = errors.New("kb: document is preloaded and cannot be removed")

	// ErrNotReady is returned when a query or mutation arrives before the
	// first successful Bind.
	ErrNotReady = errors.New("kb: knowledge base not ready")

	// ErrNotSeeded is returned when Bind is called before New has loaded a
	// snapshot.
	ErrNotSeeded = errors.New("kb: knowledge base has not been seeded")
)

// Chunk is one (text, metadata) pair tracked in the manifest, independent
// of whether it has been embedded yet.
type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// snapshot is the on-disk/embedded format: {metadata, chunks:[{text,metadata}]}.
type snapshot struct {
	Metadata map[string]string `json:"metadata"`
	Chunks   []Chunk           `json:"chunks"`
}

// KnowledgeBase is the single process-wide retrieval aggregate.
type KnowledgeBase struct {
	mu    sync.RWMutex
	state State

	idx *index.Index

	chunkedDocuments []Chunk
	preloaded        map[string]bool
	userUploaded     map[string]bool

	fingerprint string
}

// New loads a preloaded snapshot (as produced by a build-time
// preprocessing pass and embedded via go:embed) and returns a
// KnowledgeBase in the Seeding state. Vectors are not yet materialized.
func New(snapshotJSON []byte) (*KnowledgeBase, error) {
	var snap snapshot
	if err := json.Unmarshal(snapshotJSON, &snap); err != nil {
		return nil, fmt.Errorf("kb: decoding snapshot: %w", err)
	}

	preloaded := make(map[string]bool)
	chunks := make([]Chunk, len(snap.Chunks))
	for i, c := range snap.Chunks {
		meta := copyMeta(c.Metadata)
		meta["source"] = "preloaded"
		meta["is_original"] = "true"
		chunks[i] = Chunk{Text: c.Text, Metadata: meta}
		if fn := meta["filename"]; fn != "" {
			preloaded[fn] = true
		}
	}

	return &KnowledgeBase{
		state:            Seeding,
		idx:              index.New(),
		chunkedDocuments: chunks,
		preloaded:        preloaded,
		userUploaded:     make(map[string]bool),
	}, nil
}

// Empty returns a KnowledgeBase with no preloaded snapshot, useful when no
// snapshot asset is configured.
func Empty() *KnowledgeBase {
	return &KnowledgeBase{
		state:        Seeding,
		idx:          index.New(),
		preloaded:    make(map[string]bool),
		userUploaded: make(map[string]bool),
	}
}

func fingerprintOf(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:16]
}

// Bind materializes vectors for every tracked chunk against the supplied
// embedder and api key, and transitions the KB to Ready. Bind is
// idempotent for an identical api key (by fingerprint); a different key
// triggers a full rebuild: the index is dropped and every chunk is
// re-embedded and reinserted.
func (kb *KnowledgeBase) Bind(ctx context.Context, embedder *embedclient.Client, apiKey string) error {
	kb.mu.Lock()
	if kb.state == Uninitialized {
		kb.mu.Unlock()
		return ErrNotSeeded
	}
	fp := fingerprintOf(apiKey)
	if kb.state == Ready && kb.fingerprint == fp {
		kb.mu.Unlock()
		return nil
	}
	wasReady := kb.state == Ready
	if wasReady {
		kb.state = Updating
	}
	docs := make([]Chunk, len(kb.chunkedDocuments))
	copy(docs, kb.chunkedDocuments)
	kb.mu.Unlock()

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = embedder.EmbedBatch(ctx, texts)
		if err != nil {
			kb.mu.Lock()
			if wasReady {
				kb.state = Ready
			}
			kb.mu.Unlock()
			return fmt.Errorf("kb: bind: %w", err)
		}
	}

	newIdx := index.New()
	for i, d := range docs {
		if err := newIdx.Insert(d.Text, vectors[i], d.Metadata); err != nil {
			kb.mu.Lock()
			if wasReady {
				kb.state = Ready
			}
			kb.mu.Unlock()
			return fmt.Errorf("kb: bind: %w", err)
		}
	}

	kb.mu.Lock()
	kb.idx = newIdx
	kb.fingerprint = fp
	kb.state = Ready
	kb.mu.Unlock()
	return nil
}

// Ready reports whether the KB has completed at least one Bind.
func (kb *KnowledgeBase) Ready() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.state == Ready || kb.state == Updating
}

// State returns the current lifecycle state.
func (kb *KnowledgeBase) State() State {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.state
}

// Search performs a top-k cosine search against the bound index. Returns
// ErrNotReady if Bind has not yet completed.
func (kb *KnowledgeBase) Search(queryVector []float32, k int) ([]index.Result, error) {
	kb.mu.RLock()
	// During a rebind (Updating) the previous index stays live until the
	// new one is swapped in.
	ready := kb.state == Ready || kb.state == Updating
	idx := kb.idx
	kb.mu.RUnlock()
	if !ready {
		return nil, ErrNotReady
	}
	return idx.Search(queryVector, k), nil
}

// AddDocument embeds and inserts a user-uploaded document's chunks.
// Chunks are inserted in the order given (callers pass them in
// (filename, chunk_index) order as produced by the chunker). Returns
// ErrProtectedDocument if filename names a preloaded document.
func (kb *KnowledgeBase) AddDocument(ctx context.Context, embedder *embedclient.Client, filename string, chunks []Chunk) (int, error) {
	kb.mu.RLock()
	ready := kb.state == Ready
	isPreloaded := kb.preloaded[filename]
	kb.mu.RUnlock()

	if isPreloaded {
		return 0, ErrProtectedDocument
	}
	if !ready {
		return 0, ErrNotReady
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("kb: add document: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := make([]Chunk, len(chunks))
	for i, c := range chunks {
		meta := copyMeta(c.Metadata)
		meta["filename"] = filename
		meta["source"] = "user_uploaded"
		meta["is_original"] = "false"
		meta["upload_time"] = now
		inserted[i] = Chunk{Text: c.Text, Metadata: meta}
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	for i, c := range inserted {
		if err := kb.idx.Insert(c.Text, vectors[i], c.Metadata); err != nil {
			return i, fmt.Errorf("kb: add document: %w", err)
		}
	}
	kb.chunkedDocuments = append(kb.chunkedDocuments, inserted...)
	kb.userUploaded[filename] = true
	return len(inserted), nil
}

// RemoveDocument deletes every chunk belonging to filename. Returns
// ErrProtectedDocument if filename is a preloaded document.
func (kb *KnowledgeBase) RemoveDocument(filename string) (int, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.preloaded[filename] {
		return 0, ErrProtectedDocument
	}

	removed := kb.idx.DeleteByFilename(filename)

	kept := kb.chunkedDocuments[:0:0]
	for _, c := range kb.chunkedDocuments {
		if c.Metadata["filename"] != filename {
			kept = append(kept, c)
		}
	}
	kb.chunkedDocuments = kept
	delete(kb.userUploaded, filename)
	return removed, nil
}

// DocumentCount returns the number of distinct filenames currently tracked.
func (kb *KnowledgeBase) DocumentCount() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	seen := make(map[string]bool)
	for _, c := range kb.chunkedDocuments {
		seen[c.Metadata["filename"]] = true
	}
	return len(seen)
}

// ChunkCount returns the total number of tracked chunks.
func (kb *KnowledgeBase) ChunkCount() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.chunkedDocuments)
}

// PreloadedFilenames returns the sorted list of preloaded document names.
func (kb *KnowledgeBase) PreloadedFilenames() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedKeys(kb.preloaded)
}

// UserUploadedFilenames returns the sorted list of user-uploaded document names.
func (kb *KnowledgeBase) UserUploadedFilenames() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedKeys(kb.userUploaded)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
