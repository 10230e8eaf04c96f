package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/revsearch/internal/client/artifacts"
	"github.com/dmitrijs2005/revsearch/internal/client/billing"
	"github.com/dmitrijs2005/revsearch/internal/client/client"
	"github.com/dmitrijs2005/revsearch/internal/client/config"
	"github.com/dmitrijs2005/revsearch/internal/client/credentials"
	"github.com/dmitrijs2005/revsearch/internal/client/entitlement"
	"github.com/dmitrijs2005/revsearch/internal/client/history"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/client/orchestrator"
	"github.com/dmitrijs2005/revsearch/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/revsearch/internal/client/services"
	"github.com/dmitrijs2005/revsearch/internal/client/storage"
	"github.com/dmitrijs2005/revsearch/internal/filex"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

// Entitlements is the subscription state the commands read and change.
type Entitlements interface {
	IsEntitled() bool
	State() entitlement.State
	CheckedAt() time.Time
	Offers() []models.Offer
	RefreshCatalog(ctx context.Context) ([]models.Offer, error)
	Purchase(ctx context.Context, offer string) error
	Restore(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Watch(ctx context.Context, interval time.Duration)
}

// History is the saved-search store.
type History interface {
	LoadAll(ctx context.Context) ([]models.HistoryRecord, error)
	Get(ctx context.Context, id string) (models.HistoryRecord, error)
	LoadImage(ctx context.Context, key string) ([]byte, bool)
	Delete(ctx context.Context, id string) error
	Prune(ctx context.Context, keep int) (int, error)
}

// Search runs reverse image searches.
type Search interface {
	Subscribe(obs orchestrator.Observer)
	Start(ctx context.Context, image []byte) error
	Wait(ctx context.Context) (orchestrator.Result, error)
}

// App holds everything the commands need.
type App struct {
	cfg      *config.Config
	log      logging.Logger
	out      io.Writer
	in       *bufio.Reader
	identity services.IdentityService
	ent      Entitlements
	history  History
	search   Search
	closers  []func() error
}

// NewApp opens the local database and wires the services.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	a := &App{cfg: cfg, log: log, out: out, in: bufio.NewReader(in)}

	if _, err := filex.EnsureSubdDir(cfg.Storage.Dir, ""); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	db, err := storage.InitDatabase(ctx, cfg.DatabasePath())
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	if err := a.wire(ctx, db); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, db *sql.DB) error {
	cfg := a.cfg

	creds, err := credentials.Open(ctx, db, cfg.Credentials.Secret)
	if err != nil {
		return err
	}

	api, err := client.NewHTTPClient(cfg.Server.BaseURL, cfg.Client.RequestTimeout, a.log)
	if err != nil {
		return err
	}
	a.identity = services.NewIdentityService(api, creds, services.DefaultRetryPolicy, a.log)
	api.SetTokenSource(a.identity)

	provider, err := billing.NewHTTPProvider(cfg.BillingURL(), cfg.Client.RequestTimeout, a.log)
	if err != nil {
		return err
	}
	ent := entitlement.NewManager(provider, metadata.NewSQLiteRepository(db), a.identity, a.log)
	if err := ent.Load(ctx); err != nil {
		a.log.Warn(ctx, "could not restore entitlement state", "error", err)
	}
	a.ent = ent

	store, err := a.artifactStore(ctx)
	if err != nil {
		return err
	}
	h := history.New(db, store, a.log)
	a.history = h

	a.search = orchestrator.New(api, ent, h, orchestrator.Config{
		Engines:         cfg.Search.Engines,
		PollInterval:    cfg.Search.PollInterval,
		MaxPollAttempts: cfg.Search.MaxPollAttempts,
		PollTimeout:     cfg.Search.PollTimeout,
	}, a.log)
	return nil
}

func (a *App) artifactStore(ctx context.Context) (artifacts.Store, error) {
	if a.cfg.Storage.Artifacts == "s3" {
		s3c, err := artifacts.NewS3Client(ctx, a.cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		return artifacts.NewS3Store(s3c, a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Prefix), nil
	}
	return artifacts.NewFSStore(a.cfg.Storage.Dir, "images")
}

// Close releases the database.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// refreshEntitlement checks the subscription and the offer catalog
// concurrently. Failures keep the cached values and are only logged, so
// commands keep working offline.
func (a *App) refreshEntitlement(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Client.RequestTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.ent.Refresh(gctx); err != nil {
			a.log.Debug(ctx, "entitlement refresh failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := a.ent.RefreshCatalog(gctx); err != nil {
			a.log.Debug(ctx, "catalog refresh failed", "error", err)
		}
		return nil
	})
	_ = g.Wait()
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read image: %s is empty", path)
	}
	return data, nil
}
