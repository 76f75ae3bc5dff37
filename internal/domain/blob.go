package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SessionArchiver exports a finished session to cold storage and reads it
// back for inspection.
type SessionArchiver interface {
	// ArchiveSession returns the prefix the session was written under.
	ArchiveSession(ctx context.Context, report ExecutionReport, fills []ExecutionResult) (string, error)
	LoadSession(ctx context.Context, sessionID string) (ExecutionReport, []ExecutionResult, error)
}
