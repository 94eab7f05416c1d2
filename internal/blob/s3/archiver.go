package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// ObjectChecker reports whether an archive object was already uploaded.
// *Reader satisfies it.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveSources groups the stores the archiver reads from.
type ArchiveSources struct {
	Archive domain.ArchiveStore
	Ledger  domain.LedgerStore
	Events  domain.EventStore
	Audit   domain.AuditStore
}

// ArchiverConfig tunes the archiver.
type ArchiverConfig struct {
	// BatchSize caps the challenges archived per call.
	BatchSize int
	// MultipartThreshold switches uploads above this size to multipart.
	MultipartThreshold int64
	PartSize           int64
}

// ArchiveImpl implements domain.Archiver. Each terminal challenge becomes one
// JSONL object holding the challenge, its ledger and its lifecycle events,
// stored at archive/challenges/YYYY-MM/{id}.jsonl by completion month.
//
// Primary store rows are kept; the challenge is only stamped as archived.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	checker ObjectChecker
	src     ArchiveSources
	cfg     ArchiverConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewArchiver creates an ArchiveImpl. checker may be nil.
func NewArchiver(writer domain.BlobWriter, checker ObjectChecker, src ArchiveSources, cfg ArchiverConfig, logger *slog.Logger) *ArchiveImpl {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = 16 * 1024 * 1024
	}
	return &ArchiveImpl{
		writer:  writer,
		checker: checker,
		src:     src,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// archiveRecord is one JSONL line. Exactly one payload field is set.
type archiveRecord struct {
	Kind      string                 `json:"kind"`
	Challenge *domain.Challenge      `json:"challenge,omitempty"`
	Entry     *domain.LedgerEntry    `json:"entry,omitempty"`
	Event     *domain.LifecycleEvent `json:"event,omitempty"`
}

// ArchiveCompleted uploads terminal challenges last updated before the
// cutoff and returns how many were archived. A failure stops the batch; the
// challenges archived so far stay counted.
func (a *ArchiveImpl) ArchiveCompleted(ctx context.Context, before time.Time) (int64, error) {
	pending, err := a.src.Archive.ListUnarchived(ctx, before, a.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}

	var count int64
	for _, ch := range pending {
		if err := a.archiveOne(ctx, ch); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		a.logger.InfoContext(ctx, "archiver: challenges archived",
			slog.Int64("count", count),
			slog.String("before", before.Format(time.RFC3339)),
		)
	}
	return count, nil
}

func (a *ArchiveImpl) archiveOne(ctx context.Context, ch domain.Challenge) error {
	path := archivePath(ch)

	uploaded := false
	if a.checker != nil {
		exists, err := a.checker.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("s3blob: archive %s: %w", ch.ID, err)
		}
		uploaded = exists
	}

	var size int
	if !uploaded {
		buf, err := a.encode(ctx, ch)
		if err != nil {
			return err
		}
		size = len(buf)
		if int64(size) > a.cfg.MultipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), a.cfg.PartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
		}
		if err != nil {
			return fmt.Errorf("s3blob: archive %s upload: %w", ch.ID, err)
		}
	}

	if err := a.src.Archive.MarkArchived(ctx, ch.ID, a.now()); err != nil {
		return fmt.Errorf("s3blob: archive %s mark: %w", ch.ID, err)
	}

	if err := a.src.Audit.Log(ctx, "archive.challenge", map[string]any{
		"challenge_id":     ch.ID,
		"status":           string(ch.Status),
		"path":             path,
		"bytes":            size,
		"already_uploaded": uploaded,
	}); err != nil {
		a.logger.WarnContext(ctx, "archiver: audit log failed",
			slog.String("challenge_id", ch.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (a *ArchiveImpl) encode(ctx context.Context, ch domain.Challenge) ([]byte, error) {
	entries, err := a.src.Ledger.EntriesFor(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive %s entries: %w", ch.ID, err)
	}
	events, err := a.src.Events.EventsFor(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive %s events: %w", ch.ID, err)
	}

	records := make([]archiveRecord, 0, 1+len(entries)+len(events))
	records = append(records, archiveRecord{Kind: "challenge", Challenge: &ch})
	for i := range entries {
		records = append(records, archiveRecord{Kind: "entry", Entry: &entries[i]})
	}
	for i := range events {
		records = append(records, archiveRecord{Kind: "event", Event: &events[i]})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive %s marshal: %w", ch.ID, err)
	}
	return buf, nil
}

// archivePath partitions archives by the month the challenge completed:
//
//	archive/challenges/2025-01/{id}.jsonl
func archivePath(ch domain.Challenge) string {
	return fmt.Sprintf("archive/challenges/%s/%s.jsonl", ch.UpdatedAt.UTC().Format("2006-01"), ch.ID)
}

// marshalJSONL writes one compact JSON document per line.
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

var _ domain.Archiver = (*ArchiveImpl)(nil)
