package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/Fato07/runway-music-video-generator/internal/config"
	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
	appfsm "github.com/Fato07/runway-music-video-generator/pkg/fsm"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
	"github.com/Fato07/runway-music-video-generator/pkg/results"
	"github.com/Fato07/runway-music-video-generator/pkg/runway"
	"github.com/Fato07/runway-music-video-generator/pkg/security"
	"github.com/Fato07/runway-music-video-generator/pkg/storage"
)

// app bundles the long-lived dependencies shared by the commands.
type app struct {
	cfg    *config.Config
	repo   *db.Repository
	store  *results.Store
	mirror *storage.Client
	runner *appfsm.Runner
}

// openApp opens the ledger and results store, plus the S3 mirror when a
// bucket is configured. withRunner also wires the provider client and the
// workflow.
func openApp(ctx context.Context, cfg *config.Config, withRunner bool) (*app, error) {
	fsmDBPath := ""
	if withRunner {
		fsmDBPath = cfg.FSMDBPath
	}
	if err := ensureDirectories(cfg.SQLitePath, fsmDBPath, cfg.ResultsDir); err != nil {
		return nil, err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	a := &app{cfg: cfg, repo: repo}

	a.store, err = results.NewStore(cfg.ResultsDir, nil)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "results store init failed")
	}

	if cfg.MirrorEnabled() {
		a.mirror, err = storage.NewClient(ctx, storage.Options{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "S3 client failed")
		}
	}

	if !withRunner {
		return a, nil
	}

	if err := cfg.RequireProvider(); err != nil {
		a.Close()
		return nil, err
	}

	jobs := runway.NewClient(runway.Options{
		APIKey:         cfg.RunwayAPIKey,
		BaseURL:        cfg.RunwayBaseURL,
		Model:          cfg.RunwayModel,
		APIVersion:     cfg.RunwayAPIVersion,
		RequestTimeout: cfg.HTTPTimeout,
	})
	validator := security.NewValidator(cfg.MaxImageSize, cfg.ImageProxyURL, &http.Client{Timeout: cfg.HTTPTimeout})

	orch, err := orchestrator.New(orchestrator.Options{
		Validator:  validator,
		Jobs:       jobs,
		Downloader: a.store,
		Policy:     cfg.Policy(),
		Model:      cfg.RunwayModel,
	})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "orchestrator init failed")
	}

	machine := appfsm.NewMachine(repo, orch, a.store, a.mirrorTarget(), cfg.FSMMaxRetries)
	a.runner, err = appfsm.NewRunner(ctx, cfg.FSMDBPath, machine)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// mirrorTarget keeps a nil client from becoming a non-nil interface.
func (a *app) mirrorTarget() appfsm.Mirror {
	if a.mirror == nil {
		return nil
	}
	return a.mirror
}

func (a *app) Close() {
	if a.runner != nil {
		a.runner.Shutdown(10 * time.Second)
	}
	if a.repo != nil {
		a.repo.Close()
	}
}
