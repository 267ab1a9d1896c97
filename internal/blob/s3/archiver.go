package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// SnapshotArchiveStore is the narrow read access the archiver needs from the
// snapshot store: the batch of rows old enough to move to cold storage. It
// deliberately exposes only ListOlderThan rather than the full
// domain.SnapshotStore interface.
type SnapshotArchiveStore interface {
	ListOlderThan(ctx context.Context, before time.Time) ([]domain.PerformanceSnapshot, error)
}

// ArchiveImpl implements domain.Archiver by querying the snapshot store for
// old rows, serializing them to JSONL, and uploading the result to S3.
//
// Archived rows are not deleted from the primary store, here or anywhere
// else in the module.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	snapshots SnapshotArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, snapshots SnapshotArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, snapshots: snapshots}
}

// ArchiveSnapshots queries all performance snapshots before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/snapshots/YYYY-MM.jsonl. It returns the count of archived rows.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snapshots.ListOlderThan(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := archivePath("snapshots", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	return int64(len(snaps)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/snapshots/2025-01.jsonl
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
