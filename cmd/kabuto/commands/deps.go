package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/external/jquants"
	"github.com/hmuraoka/kabuto/internal/external/kabutan"
	"github.com/hmuraoka/kabuto/internal/notify"
	"github.com/hmuraoka/kabuto/internal/pipeline"
	"github.com/hmuraoka/kabuto/internal/store"
	"github.com/hmuraoka/kabuto/internal/strategyconfig"
	"github.com/hmuraoka/kabuto/pkg/config"
	"github.com/hmuraoka/kabuto/pkg/database"
	"github.com/hmuraoka/kabuto/pkg/httputil"
	"github.com/hmuraoka/kabuto/pkg/logger"
	"github.com/hmuraoka/kabuto/pkg/redis"
)

// Demo source parameters. Fifty codes is enough for the watchlist to
// fill and rotate.
const (
	demoSeed  = 42
	demoCodes = 50
)

// appDeps bundles everything a command can wire up.
type appDeps struct {
	cfg      *config.Config
	log      *logger.Logger
	cal      calendar.Resolver
	db       *database.DB
	rdb      *redis.Client
	st       *store.Store
	runner   *pipeline.Runner
	strategy *strategyconfig.Config
}

// depsOptions selects which parts of the stack a command needs.
type depsOptions struct {
	// demo swaps the vendor client for the deterministic demo source
	// and the strategy YAML for its defaults.
	demo bool
	// useStore connects Postgres and runs migrations. Demo runs
	// without it unless the command persists (ingest).
	useStore bool
	// outDir overrides OUTPUT_DIR when non-empty.
	outDir string
}

// initDeps wires the application stack for one command invocation.
// ⭐ SSOT: CLI の依存組み立てはこの関数のみ
func initDeps(ctx context.Context, opts depsOptions) (*appDeps, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Trading calendar
	cal := calendar.NewJPX()

	d := &appDeps{cfg: cfg, log: log, cal: cal}

	// 4. Connect to database (optional)
	if opts.useStore {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		d.db = db
		d.st = store.New(db, log)
		if err := d.st.Migrate(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}

	// 5. Create HTTP client
	httpClient := httputil.New(log)

	// 6. Bar source: demo or vendor
	var src pipeline.BarSource
	var events pipeline.EventSource
	if opts.demo {
		src = jquants.NewDemoSource(demoSeed, demoCodes, cal, log)
	} else {
		rdb, err := redis.New(cfg)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		d.rdb = rdb
		src = jquants.NewClient(cfg.JQuants, httpClient, rdb, cal, log)
		if cfg.Kabutan.Enabled {
			events = kabutan.NewClient(cfg.Kabutan, httpClient, rdb, log)
		}
	}

	// 7. Notifier. An empty webhook URL means fallback files only.
	notifier := notify.New(log, httpClient, cfg.Notify.WebhookURL)

	// 8. Strategy parameters
	strategy, err := loadStrategy(cfg, opts.demo, log)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.strategy = strategy

	// 9. Output directory
	outDir := opts.outDir
	if outDir == "" {
		outDir = cfg.OutputDir
	}

	// 10. Runner
	d.runner = pipeline.NewRunner(d.st, src, events, notifier, cal, strategy, outDir, log)

	return d, nil
}

// loadStrategy reads the strategy YAML, falling back to compiled
// defaults when the file is absent or the run is a demo.
func loadStrategy(cfg *config.Config, demo bool, log *logger.Logger) (*strategyconfig.Config, error) {
	if demo {
		return strategyconfig.Default(), nil
	}
	if _, err := os.Stat(cfg.StrategyPath); os.IsNotExist(err) {
		log.WithField("path", cfg.StrategyPath).Info("Strategy config not found, using defaults")
		return strategyconfig.Default(), nil
	}
	strategy, err := strategyconfig.Load(cfg.StrategyPath)
	if err != nil {
		return nil, fmt.Errorf("load strategy config: %w", err)
	}
	return strategy, nil
}

// Close releases the database and redis connections.
func (d *appDeps) Close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.rdb != nil {
		d.rdb.Close()
	}
}
