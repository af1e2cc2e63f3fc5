// Package session implements the per-client Session Registry: scratch
// state and API-key binding that does not own any retrievable chunks —
// those live in the global knowledge base.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one client's scratch state.
type Session struct {
	ID                string
	CreatedAt         time.Time
	apiKeyFingerprint string
	filenames         map[string]bool
}

// Filenames returns the sorted list of filenames this session has uploaded.
func (s *Session) Filenames() []string {
	out := make([]string, 0, len(s.filenames))
	for f := range s.filenames {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Registry is a mapping session_id -> Session, guarded by its own lock
// independent of the knowledge base's.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func fingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte("ragcore-session-salt:" + apiKey))
	return hex.EncodeToString(sum[:])[:16]
}

// GetOrCreate returns the Session for sessionID, creating one if it is
// unknown: an empty sessionID gets a freshly minted UUID, a non-empty
// unknown one is registered under the id given. If the session exists but its
// recorded API-key fingerprint differs from apiKey's, the fingerprint is
// rotated in place; session data is never invalidated since sessions hold
// no retrievable state.
func (r *Registry) GetOrCreate(sessionID, apiKey string) *Session {
	fp := fingerprint(apiKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != "" {
		if s, ok := r.sessions[sessionID]; ok {
			if s.apiKeyFingerprint != fp {
				s.apiKeyFingerprint = fp
			}
			return s
		}
	}

	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		ID:                id,
		CreatedAt:         time.Now().UTC(),
		apiKeyFingerprint: fp,
		filenames:         make(map[string]bool),
	}
	r.sessions[id] = s
	return s
}

// Get returns the Session for sessionID, or (nil, false) if unknown.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Delete removes a session. Returns false if sessionID was unknown.
func (r *Registry) Delete(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

// RecordUpload notes that sessionID uploaded filename, for UX listing
// only; it has no effect on retrieval.
func (r *Registry) RecordUpload(sessionID, filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.filenames[filename] = true
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns every session, sorted by ID, for listing endpoints.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
