package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/store/memory"
)

type fakeWriter struct {
	mu        sync.Mutex
	objects   map[string][]byte
	multipart int
	fail      bool
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.fail {
		return errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = b
	return nil
}

func (f *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	f.mu.Lock()
	f.multipart++
	f.mu.Unlock()
	return f.Put(ctx, path, data, jsonlContentType)
}

func (f *fakeWriter) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func seedCompleted(t *testing.T, s *memory.Store, id string, completed time.Time) {
	t.Helper()
	ctx := context.Background()

	c, err := domain.NewChallenge(id, "user-1", "", decimal.NewFromInt(10000), domain.DefaultLimits(), completed.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.CreateChallenge(ctx, c))

	next := c
	next.CurrentBalance = decimal.NewFromInt(9000)
	next.Status = domain.ChallengeStatusFailed
	next.Version = 2
	next.UpdatedAt = completed
	entry := domain.LedgerEntry{ID: id + "-e1", ChallengeID: id, OwnerID: "user-1", Symbol: "X", Side: domain.SideSell,
		Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1), PnL: decimal.NewFromInt(-1000), Seq: 2, Timestamp: completed}
	ev := domain.LifecycleEvent{ID: id + "-ev", ChallengeID: id, OwnerID: "user-1", From: domain.ChallengeStatusActive,
		To: domain.ChallengeStatusFailed, Reason: domain.ReasonTotalLossBreached, Trigger: domain.TriggerTrade,
		BalanceAtTransition: next.CurrentBalance, Timestamp: completed}
	require.NoError(t, s.Commit(ctx, domain.TradeCommit{Challenge: next, ExpectedVersion: 1, Entry: &entry, Event: &ev}))
}

func newTestArchiver(s *memory.Store, w *fakeWriter, cfg ArchiverConfig) *ArchiveImpl {
	return NewArchiver(w, w, ArchiveSources{Archive: s, Ledger: s, Events: s, Audit: s}, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestArchiveCompletedWritesJSONL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	completed := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	seedCompleted(t, s, "old", completed)
	seedCompleted(t, s, "recent", completed.Add(72*time.Hour))

	active, err := domain.NewChallenge("live", "user-1", "", decimal.NewFromInt(5000), domain.DefaultLimits(), completed)
	require.NoError(t, err)
	require.NoError(t, s.CreateChallenge(ctx, active))

	w := &fakeWriter{objects: map[string][]byte{}}
	a := newTestArchiver(s, w, ArchiverConfig{})

	n, err := a.ArchiveCompleted(ctx, completed.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	data, ok := w.objects["archive/challenges/2025-02/old.jsonl"]
	require.True(t, ok)

	var kinds []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		kinds = append(kinds, rec.Kind)
	}
	assert.Equal(t, []string{"challenge", "entry", "event"}, kinds)

	// Second run finds nothing new.
	n, err = a.ArchiveCompleted(ctx, completed.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	audit, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	assert.Equal(t, "archive.challenge", audit[0].Event)
}

func TestArchiveSkipsUploadWhenObjectExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	completed := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	seedCompleted(t, s, "old", completed)

	w := &fakeWriter{objects: map[string][]byte{"archive/challenges/2025-02/old.jsonl": []byte("prior")}}
	a := newTestArchiver(s, w, ArchiverConfig{})

	n, err := a.ArchiveCompleted(ctx, completed.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []byte("prior"), w.objects["archive/challenges/2025-02/old.jsonl"])
}

func TestArchiveUsesMultipartForLargeObjects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	completed := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	seedCompleted(t, s, "old", completed)

	w := &fakeWriter{objects: map[string][]byte{}}
	a := newTestArchiver(s, w, ArchiverConfig{MultipartThreshold: 10})

	_, err := a.ArchiveCompleted(ctx, completed.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, w.multipart)
}

func TestArchiveUploadFailureLeavesChallengeUnarchived(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	completed := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	seedCompleted(t, s, "old", completed)

	w := &fakeWriter{objects: map[string][]byte{}, fail: true}
	a := newTestArchiver(s, w, ArchiverConfig{})

	n, err := a.ArchiveCompleted(ctx, completed.Add(time.Hour))
	assert.Error(t, err)
	assert.Zero(t, n)

	pending, err := s.ListUnarchived(ctx, completed.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNormaliseEndpoint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "https://minio.local", normaliseEndpoint("minio.local", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}

func TestObjectKeyPrefix(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: normalisePrefix("/tradesense/")}
	assert.Equal(t, "tradesense/archive/a.jsonl", c.objectKey("archive/a.jsonl"))
	assert.Equal(t, "archive/a.jsonl", (&Client{prefix: normalisePrefix("")}).objectKey("/archive/a.jsonl"))
}
