package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/revsearch/internal/client/config"
	"github.com/dmitrijs2005/revsearch/internal/client/entitlement"
	"github.com/dmitrijs2005/revsearch/internal/client/history"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/client/orchestrator"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

type fakeEnt struct {
	mu          sync.Mutex
	entitled    bool
	offers      []models.Offer
	purchaseErr error
	purchased   []string
	refreshes   int
}

func (f *fakeEnt) IsEntitled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entitled
}

func (f *fakeEnt) State() entitlement.State {
	if f.IsEntitled() {
		return entitlement.StateSubscribed
	}
	return entitlement.StateNotSubscribed
}

func (f *fakeEnt) CheckedAt() time.Time { return time.Time{} }

func (f *fakeEnt) Offers() []models.Offer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Offer(nil), f.offers...)
}

func (f *fakeEnt) RefreshCatalog(context.Context) ([]models.Offer, error) { return f.Offers(), nil }

func (f *fakeEnt) Purchase(_ context.Context, offer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchased = append(f.purchased, offer)
	if f.purchaseErr != nil {
		return f.purchaseErr
	}
	f.entitled = true
	return nil
}

func (f *fakeEnt) Restore(context.Context) (bool, error) { return f.IsEntitled(), nil }

func (f *fakeEnt) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeEnt) Watch(ctx context.Context, _ time.Duration) { <-ctx.Done() }

type memHistory struct {
	mu      sync.Mutex
	records []models.HistoryRecord
	images  map[string][]byte
	n       int
}

func newMemHistory() *memHistory { return &memHistory{images: map[string][]byte{}} }

func (h *memHistory) Save(_ context.Context, image []byte, result *models.SearchResult) (models.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n++
	key := "img-" + result.TaskID
	rec := models.HistoryRecord{
		ID:          "rec-" + result.TaskID,
		CapturedAt:  time.Date(2026, 3, 1, 12, h.n, 0, 0, time.UTC),
		ArtifactKey: key,
		Result:      result,
	}
	h.images[key] = image
	h.records = append([]models.HistoryRecord{rec}, h.records...)
	return rec, nil
}

func (h *memHistory) LoadAll(context.Context) ([]models.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HistoryRecord(nil), h.records...), nil
}

func (h *memHistory) Get(_ context.Context, id string) (models.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.ID == id {
			return r, nil
		}
	}
	return models.HistoryRecord{}, history.ErrNotFound
}

func (h *memHistory) LoadImage(_ context.Context, key string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.images[key]
	return b, ok
}

func (h *memHistory) Delete(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.records {
		if r.ID == id {
			h.records = append(h.records[:i], h.records[i+1:]...)
			return nil
		}
	}
	return history.ErrNotFound
}

func (h *memHistory) Prune(_ context.Context, keep int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) <= keep {
		return 0, nil
	}
	n := len(h.records) - keep
	h.records = h.records[:keep]
	return n, nil
}

// scriptedAPI fails CreateSearchTask with the queued errors, then succeeds
// with every engine completed on the first poll.
type scriptedAPI struct {
	mu         sync.Mutex
	createErrs []error
	creates    int
}

func (s *scriptedAPI) CreateSearchTask(context.Context, []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		return "", err
	}
	return "task-7", nil
}

func (s *scriptedAPI) GetSearchStatus(_ context.Context, id string) (*models.StatusReport, error) {
	st := map[string]models.EngineStatus{}
	links := map[string]string{}
	for _, e := range models.DefaultEngines {
		st[e] = models.StatusCompleted
		links[e] = "https://" + e + ".test/r"
	}
	return &models.StatusReport{TaskID: id, Status: st, Links: links}, nil
}

func (s *scriptedAPI) createCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

type fakeIdentity struct {
	userID string
	err    error
}

func (f *fakeIdentity) EnsureDeviceID(context.Context) (string, error) { return "dev-1", nil }
func (f *fakeIdentity) Register(context.Context) (models.Identity, error) {
	if f.err != nil {
		return models.Identity{}, f.err
	}
	return models.Identity{DeviceID: "dev-1", UserID: f.userID, SessionToken: "tok"}, nil
}
func (f *fakeIdentity) Token(context.Context) (string, error)   { return "tok", f.err }
func (f *fakeIdentity) Refresh(context.Context) (string, error) { return "tok", f.err }
func (f *fakeIdentity) UserID(context.Context) (string, error) {
	if f.userID == "" {
		return "", f.err
	}
	return f.userID, nil
}

type harness struct {
	ent      *fakeEnt
	hist     *memHistory
	api      *scriptedAPI
	identity *fakeIdentity
	out      *syncBuffer
}

func newHarness() *harness {
	return &harness{
		ent:      &fakeEnt{entitled: true, offers: catalog},
		hist:     newMemHistory(),
		api:      &scriptedAPI{},
		identity: &fakeIdentity{userID: "user-1"},
		out:      &syncBuffer{},
	}
}

func (h *harness) factory(_ context.Context, cfg *config.Config, _ logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	return &App{
		cfg:      cfg,
		log:      logging.Nop(),
		out:      out,
		in:       bufio.NewReader(in),
		identity: h.identity,
		ent:      h.ent,
		history:  h.hist,
		search: orchestrator.New(h.api, h.ent, h.hist, orchestrator.Config{
			PollInterval: time.Millisecond,
		}, nil),
	}, nil
}

// run executes the CLI with args and stdin, using a temp data dir.
func (h *harness) run(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	cmd := NewRootCommand(h.factory, strings.NewReader(stdin), h.out, io.Discard)
	cmd.SetArgs(append([]string{"--data-dir", t.TempDir(), "--log-level", "error"}, args...))
	return cmd.ExecuteContext(context.Background())
}

var catalog = []models.Offer{
	{ID: "pro.week", DisplayPrice: "$4.99", Price: 4.99, Currency: "USD", Period: models.PeriodWeek},
	{ID: "pro.year", DisplayPrice: "$39.99", Price: 39.99, Currency: "USD", Period: models.PeriodYear},
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeImage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("jpeg")...), 0o600))
	return path
}
