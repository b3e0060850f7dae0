package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// LedgerHistory is the narrow read surface the archiver needs from the
// ledger store: it only lists, never mutates.
type LedgerHistory interface {
	LoadPositions(ctx context.Context) ([]domain.Position, error)
	ListFills(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error)
	ListTriggers(ctx context.Context, opts domain.ListOpts) ([]domain.TriggerEvent, error)
}

// ArchiveImpl implements domain.Archiver by reading old ledger history,
// serializing it to JSONL, and uploading the result to S3.
//
// Archived records are intentionally NOT deleted from the primary store --
// that is a separate, explicit step to be executed after the archive has
// been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	store  LedgerHistory
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, store LedgerHistory, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchivePositions uploads all terminal positions closed strictly before the
// cutoff to archive/positions/YYYY-MM.jsonl and returns the archived count.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.store.LoadPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}

	var old []domain.Position
	for _, p := range all {
		if p.Terminal() && p.ClosedAt != nil && p.ClosedAt.Before(before) {
			old = append(old, p)
		}
	}
	return archiveUpload(ctx, a, "positions", old, before)
}

// ArchiveFills uploads all fills recorded strictly before the cutoff to
// archive/fills/YYYY-MM.jsonl and returns the archived count.
func (a *ArchiveImpl) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.Add(-time.Nanosecond)
	fills, err := a.store.ListFills(ctx, domain.ListOpts{Until: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	return archiveUpload(ctx, a, "fills", fills, before)
}

// ArchiveTriggers uploads all trigger events fired strictly before the
// cutoff to archive/triggers/YYYY-MM.jsonl and returns the archived count.
func (a *ArchiveImpl) ArchiveTriggers(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.Add(-time.Nanosecond)
	events, err := a.store.ListTriggers(ctx, domain.ListOpts{Until: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive triggers query: %w", err)
	}
	return archiveUpload(ctx, a, "triggers", events, before)
}

// archiveUpload serializes records to JSONL and uploads them. An empty batch
// uploads nothing and reports zero.
func archiveUpload[T any](ctx context.Context, a *ArchiveImpl, kind string, records []T, before time.Time) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	a.logger.InfoContext(ctx, "s3blob: history archived",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/positions/2025-01.jsonl
//	archive/fills/2025-01.jsonl
//	archive/triggers/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
