package ragcore

import "errors"

// The first five sentinels below name taxonomy cases that no function in
// this module currently returns: the packages report them with their own
// errors (index.ErrDimension, kb.ErrProtectedDocument) or the HTTP handlers
// answer them directly (400 for an unsupported extension, 404 for an
// unknown session or document). The server's statusForError still maps
// ErrProtectedDocument and ErrUnsupportedFileType.
var (
	// ErrUnsupportedFileType names an uploaded file whose extension has no
	// registered parser.
	ErrUnsupportedFileType = errors.New("ragcore: unsupported file type")

	// ErrDimensionMismatch names an internal invariant violation: an
	// embedding vector whose dimension does not match the index. Should
	// never reach a client; surfaced as 500 if it does.
	ErrDimensionMismatch = errors.New("ragcore: embedding dimension mismatch")

	// ErrProtectedDocument names an attempt to delete a preloaded
	// (original) document.
	ErrProtectedDocument = errors.New("ragcore: document is preloaded and cannot be deleted")

	// ErrUnknownSession names a session id with no registered session.
	ErrUnknownSession = errors.New("ragcore: unknown session")

	// ErrUnknownDocument names a delete or lookup of a filename the
	// knowledge base has never seen.
	ErrUnknownDocument = errors.New("ragcore: unknown document")

	// ErrKnowledgeBaseNotReady is returned when a query or mutation
	// arrives while the knowledge base is still seeding.
	ErrKnowledgeBaseNotReady = errors.New("ragcore: knowledge base not ready")
)
