package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/alanyoungcy/execsim/internal/domain"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeJSONL = "application/x-ndjson"

	// multipartThreshold switches the fill log to a multipart upload.
	multipartThreshold = 16 << 20
)

// Archiver implements domain.SessionArchiver. A session lands under
// {prefix}/{session_id}/ as report.json and fills.jsonl.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver. reader confirms the report object exists
// after upload and serves LoadSession; it may be nil for a write-only
// archive.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, prefix string, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = "sessions"
	}
	return &Archiver{
		writer: writer,
		reader: reader,
		prefix: prefix,
		logger: logger.With(slog.String("component", "s3_archiver")),
	}
}

// ArchiveSession uploads the report and fill log and returns the prefix
// they were written under.
func (a *Archiver) ArchiveSession(ctx context.Context, report domain.ExecutionReport, fills []domain.ExecutionResult) (string, error) {
	if report.SessionID == "" {
		return "", fmt.Errorf("s3blob: archive session: %w: empty session id", domain.ErrValidation)
	}
	dir := sessionPrefix(a.prefix, report.SessionID)

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session marshal report: %w", err)
	}
	reportPath := path.Join(dir, "report.json")
	if err := a.writer.Put(ctx, reportPath, bytes.NewReader(reportJSON), contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: archive session report: %w", err)
	}

	fillsJSONL, err := marshalJSONL(fills)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session marshal fills: %w", err)
	}
	fillsPath := path.Join(dir, "fills.jsonl")
	if len(fillsJSONL) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, fillsPath, bytes.NewReader(fillsJSONL), minPartSize)
	} else {
		err = a.writer.Put(ctx, fillsPath, bytes.NewReader(fillsJSONL), contentTypeJSONL)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session fills: %w", err)
	}

	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, reportPath)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive session verify: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("s3blob: archive session verify %s: %w", reportPath, domain.ErrNotFound)
		}
	}

	a.logger.Info("s3blob: session archived",
		slog.String("session_id", report.SessionID),
		slog.String("prefix", dir),
		slog.Int("fills", len(fills)),
		slog.Int("fill_bytes", len(fillsJSONL)),
	)
	return dir, nil
}

// sessionPrefix builds the object prefix for a session, e.g.
//
//	sessions/2f1c.../
func sessionPrefix(prefix, sessionID string) string {
	return path.Join(prefix, sessionID)
}

// LoadSession reads an archived session back for inspection. It returns
// domain.ErrNotFound when the session was never archived.
func (a *Archiver) LoadSession(ctx context.Context, sessionID string) (domain.ExecutionReport, []domain.ExecutionResult, error) {
	var report domain.ExecutionReport
	if a.reader == nil {
		return report, nil, fmt.Errorf("s3blob: load session: archive is write-only")
	}
	dir := sessionPrefix(a.prefix, sessionID)

	body, err := a.reader.Get(ctx, path.Join(dir, "report.json"))
	if err != nil {
		return report, nil, fmt.Errorf("s3blob: load session %s: %w", sessionID, err)
	}
	err = json.NewDecoder(body).Decode(&report)
	body.Close()
	if err != nil {
		return report, nil, fmt.Errorf("s3blob: load session %s decode report: %w", sessionID, err)
	}

	body, err = a.reader.Get(ctx, path.Join(dir, "fills.jsonl"))
	if err != nil {
		return report, nil, fmt.Errorf("s3blob: load session %s: %w", sessionID, err)
	}
	defer body.Close()
	fills, err := unmarshalJSONL[domain.ExecutionResult](body)
	if err != nil {
		return report, nil, fmt.Errorf("s3blob: load session %s fills: %w", sessionID, err)
	}
	return report, fills, nil
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// unmarshalJSONL decodes newline-delimited JSON, skipping blank lines.
func unmarshalJSONL[T any](r io.Reader) ([]T, error) {
	var out []T
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

var _ domain.SessionArchiver = (*Archiver)(nil)
