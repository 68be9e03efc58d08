package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"

	"transit-batch-planner/internal/adapters/cache"
	"transit-batch-planner/internal/adapters/engine"
	"transit-batch-planner/internal/adapters/journal"
	"transit-batch-planner/internal/config"
	"transit-batch-planner/internal/platform/db"
	"transit-batch-planner/internal/ports"
	"transit-batch-planner/internal/services"
	"transit-batch-planner/internal/table"
)

var (
	cfgPath   string
	verbose   bool
	inputPath string
	outputDir string
	resumeID  string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "tbp",
	Short:         "Batch public-transit itineraries and travel times for OD pair tables",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		if err := godotenv.Load(); err == nil {
			logger.Debug("loaded .env file")
		}

		cfg, err = config.Load(cfgPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute ranked itineraries and the best option for every OD pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), services.ModePlan)
	},
}

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Compute door-to-door travel times for every OD pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), services.ModeMatrix)
	},
}

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the run journal schema in PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Journal.Backend != "postgres" {
			return errors.New("initdb requires journal.backend: postgres")
		}
		pool, err := db.Open(cfg.Journal.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := journal.InitPostgresSchema(pool); err != nil {
			return err
		}
		logger.Info("journal schema ready")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{planCmd, matrixCmd} {
		cmd.Flags().StringVarP(&inputPath, "input", "i", "", "OD pair table (overrides input.path)")
		cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory (overrides output.dir)")
		cmd.Flags().StringVar(&resumeID, "resume", "", "Resume the interrupted run with this id")
	}

	rootCmd.AddCommand(planCmd, matrixCmd, initdbCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runBatch is the composition root for both modes: it wires the OD table,
// the run journal, the trip cache, and the engine client together and
// drives the batch to completion.
func runBatch(ctx context.Context, mode string) error {
	in := cfg.Input.Path
	if inputPath != "" {
		in = inputPath
	}
	if in == "" {
		return errors.New("no input table: set input.path or pass --input")
	}

	outDir := cfg.Output.Dir
	if outputDir != "" {
		outDir = outputDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tab, err := table.ReadPairs(in, cfg.Input.DelimiterRune(), cfg.Input.Encoding)
	if err != nil {
		return err
	}
	logger.Info("od table loaded", zap.String("path", in), zap.Int("rows", len(tab.Pairs)))

	jrnl, closeJournal, err := openJournal()
	if err != nil {
		return err
	}
	defer closeJournal()

	params := services.BatchParams{
		Mode:               mode,
		DepartAt:           cfg.Batch.DepartAt,
		Modes:              cfg.Batch.Modes,
		EgressMode:         cfg.Batch.EgressMode,
		MaxWalkTime:        cfg.Batch.MaxWalkTime(),
		MaxTripDuration:    cfg.Batch.MaxTripDuration(),
		ShortestPathOnly:   cfg.Batch.ShortestPathOnly,
		CheckpointInterval: cfg.Batch.CheckpointInterval,
		StatusInterval:     cfg.Batch.StatusInterval,
	}

	runID, odOut, resOut, err := openRun(ctx, jrnl, mode, in, outDir, tab.Header, params)
	if err != nil {
		return err
	}
	defer odOut.Close()
	defer resOut.Close()

	tripCache, closeCache, err := openTripCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	eng, err := engine.New(cfg.Engine.BaseURL, cfg.Engine.RequestTimeout(), engine.BuildOptions{
		DataDir:     cfg.Engine.DataDir,
		Verbose:     cfg.Engine.Verbose,
		Overwrite:   cfg.Engine.Overwrite,
		Elevation:   cfg.Engine.Elevation,
		MaxMemoryGB: cfg.Engine.MaxMemoryGB,
	}, tripCache, logger)
	if err != nil {
		return err
	}
	if err := eng.Build(ctx); err != nil {
		return err
	}
	defer func() {
		// Release the engine network even when the run context is gone.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Warn("engine network release failed", zap.Error(err))
		}
	}()

	batch := &services.Batch{
		Planner:    eng,
		TravelTime: eng,
		Journal:    jrnl,
		ODOut:      odOut,
		ResultOut:  resOut,
		Params:     params,
		Log:        logger,
	}

	sum, err := batch.Run(ctx, runID, tab.Pairs)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("run interrupted; restart with --resume to continue",
			zap.String("run", runID),
			zap.Int("processed", sum.Processed),
			zap.Int("skipped", sum.Skipped))
		return err
	}
	if err != nil {
		return err
	}

	logger.Info("run complete",
		zap.String("run", runID),
		zap.Int("rows", sum.Total),
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("ok", sum.OK),
		zap.Int("no_itinerary", sum.NoItinerary),
		zap.Int("no_option", sum.NoOption),
		zap.Int("failed", sum.Failed))
	return nil
}

// openRun either registers a fresh run and creates the output tables, or
// validates a resume request and reopens the tables at the committed
// offsets.
func openRun(ctx context.Context, jrnl ports.RunJournal, mode, in, outDir string, inputHeader []string, params services.BatchParams) (string, *table.Writer, *table.Writer, error) {
	odPath := filepath.Join(outDir, "od_results.csv")
	resPath := filepath.Join(outDir, "itineraries.csv")
	resHeader := services.ItineraryHeader
	if mode == services.ModeMatrix {
		resPath = filepath.Join(outDir, "travel_times.csv")
		resHeader = services.TravelTimeHeader
	}

	odHeader := make([]string, 0, len(inputHeader)+len(services.ODResultColumns))
	odHeader = append(odHeader, inputHeader...)
	odHeader = append(odHeader, services.ODResultColumns...)

	fingerprint := services.Fingerprint(in, params)
	delim := cfg.Output.DelimiterRune()
	enc := cfg.Output.Encoding

	if resumeID == "" {
		runID := uuid.NewString()
		run := ports.Run{ID: runID, Mode: mode, InputPath: in, Fingerprint: fingerprint, CreatedAt: time.Now().UTC()}
		if err := jrnl.CreateRun(ctx, run); err != nil {
			return "", nil, nil, err
		}
		logger.Info("run started", zap.String("run", runID), zap.String("mode", mode))

		odOut, resOut, err := createOutputs(odPath, resPath, delim, enc, odHeader, resHeader)
		return runID, odOut, resOut, err
	}

	run, err := jrnl.GetRun(ctx, resumeID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("resume %s: %w", resumeID, err)
	}
	if run.Mode != mode {
		return "", nil, nil, fmt.Errorf("resume %s: run was started in %s mode", resumeID, run.Mode)
	}
	if run.Fingerprint != fingerprint {
		return "", nil, nil, fmt.Errorf("resume %s: input table or batch parameters changed since the run was started", resumeID)
	}

	cp, found, err := jrnl.Cursor(ctx, resumeID)
	if err != nil {
		return "", nil, nil, err
	}
	if !found {
		// The run never reached a checkpoint; start the files over.
		odOut, resOut, err := createOutputs(odPath, resPath, delim, enc, odHeader, resHeader)
		return resumeID, odOut, resOut, err
	}

	odOut, err := table.Resume(odPath, delim, enc, cp.ODBytes)
	if err != nil {
		return "", nil, nil, fmt.Errorf("resume %s: %w", resumeID, err)
	}
	resOut, err := table.Resume(resPath, delim, enc, cp.ResultBytes)
	if err != nil {
		odOut.Close()
		return "", nil, nil, fmt.Errorf("resume %s: %w", resumeID, err)
	}
	logger.Info("resuming run", zap.String("run", resumeID), zap.Int("last_row", cp.LastRow))
	return resumeID, odOut, resOut, nil
}

func createOutputs(odPath, resPath string, delim rune, enc string, odHeader, resHeader []string) (*table.Writer, *table.Writer, error) {
	odOut, err := table.Create(odPath, delim, enc, odHeader)
	if err != nil {
		return nil, nil, err
	}
	resOut, err := table.Create(resPath, delim, enc, resHeader)
	if err != nil {
		odOut.Close()
		return nil, nil, err
	}
	return odOut, resOut, nil
}

func openJournal() (ports.RunJournal, func(), error) {
	if cfg.Journal.Backend == "postgres" {
		pool, err := db.Open(cfg.Journal.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return journal.NewSQLRunJournal(pool), func() { _ = pool.Close() }, nil
	}

	jdb, err := sql.Open("sqlite", cfg.Journal.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite journal %q: %w", cfg.Journal.SQLitePath, err)
	}
	if err := journal.InitSqliteSchema(jdb); err != nil {
		jdb.Close()
		return nil, nil, err
	}
	return journal.NewSqliteRunJournal(jdb), func() { _ = jdb.Close() }, nil
}

func openTripCache(ctx context.Context) (ports.TripCache, func(), error) {
	switch cfg.Cache.Backend {
	case "none":
		return nil, func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect redis trip cache at %s: %w", cfg.Cache.RedisAddr, err)
		}
		return cache.NewRedisTripCache(rdb), func() { _ = rdb.Close() }, nil
	default:
		cdb, err := sql.Open("sqlite", cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite trip cache %q: %w", cfg.Cache.SQLitePath, err)
		}
		if err := cache.InitSchema(cdb); err != nil {
			cdb.Close()
			return nil, nil, err
		}
		return cache.NewSqliteTripCache(cdb), func() { _ = cdb.Close() }, nil
	}
}
