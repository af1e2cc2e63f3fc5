package kb

import _ "embed"

//go:embed data/snapshot.json
var preloadedSnapshot []byte

// NewFromEmbeddedSnapshot returns a KnowledgeBase seeded from the
// preloaded corpus compiled into the binary, so the process is
// self-contained at rest.
func NewFromEmbeddedSnapshot() (*KnowledgeBase, error) {
	return New(preloadedSnapshot)
}
