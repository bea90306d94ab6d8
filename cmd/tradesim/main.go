package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tradegrid.ai/internal/persistence/indexdb"
	persistlog "tradegrid.ai/internal/persistence/log"
	"tradegrid.ai/internal/persistence/snapshot"
	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/tuning"
	"tradegrid.ai/internal/sim/world"
	"tradegrid.ai/internal/transport/observer"
)

func main() {
	var (
		configPath    = flag.String("config", "./configs/two_agent_barter.yaml", "run file (yaml)")
		ticks         = flag.Int("ticks", 0, "ticks to run (default: run.ticks from the config; 0 there means until interrupted)")
		seed          = flag.Int64("seed", 0, "override run.seed (0 keeps the config value)")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite read-model index")
		observeAddr   = flag.String("observe", "", "observer websocket listen address, e.g. 127.0.0.1:8080 (empty to disable)")
		resumePath    = flag.String("resume", "", "snapshot to resume from (optional)")
		snapshotEvery = flag.Int("snapshot_every", 0, "write a snapshot every N ticks (0: only at exit)")
		tickRate      = flag.Int("tick_rate", 0, "ticks per second (0: as fast as possible)")
		segmentTicks  = flag.Int("segment_ticks", persistlog.DefaultSegmentTicks, "ticks per event log segment")
		verbose       = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(logger, runOptions{
		ConfigPath:    *configPath,
		Ticks:         *ticks,
		Seed:          *seed,
		DataDir:       *dataDir,
		DisableDB:     *disableDB,
		ObserveAddr:   strings.TrimSpace(*observeAddr),
		ResumePath:    strings.TrimSpace(*resumePath),
		SnapshotEvery: *snapshotEvery,
		TickRate:      *tickRate,
		SegmentTicks:  *segmentTicks,
	}); err != nil {
		logger.Error("tradesim failed", "err", err)
		os.Exit(1)
	}
}

type runOptions struct {
	ConfigPath    string
	Ticks         int
	Seed          int64
	DataDir       string
	DisableDB     bool
	ObserveAddr   string
	ResumePath    string
	SnapshotEvery int
	TickRate      int
	SegmentTicks  int
}

func run(logger *slog.Logger, o runOptions) error {
	tune, err := tuning.Load(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.Seed != 0 {
		tune.Run.Seed = o.Seed
	}
	cfg, err := world.FromTuning(tune)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ticks := o.Ticks
	if ticks == 0 {
		ticks = tune.Run.Ticks
	}

	var snap *snapshot.SnapshotV1
	runID := uuid.NewString()
	if o.ResumePath != "" {
		s, err := snapshot.ReadSnapshot(o.ResumePath)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		snap = &s
		if s.Header.RunID != "" {
			runID = s.Header.RunID
		}
	}

	runDir := filepath.Join(o.DataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	sinks := multiSink{log: logger}
	tickLog := persistlog.NewTickLogger(runDir, o.SegmentTicks)
	tradeLog := persistlog.NewTradeLogger(runDir, o.SegmentTicks)
	defer tickLog.Close()
	defer tradeLog.Close()
	sinks.add("events", tickLog)
	sinks.add("trades", tradeLog)

	var idx *indexdb.SQLiteIndex
	if !o.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(runDir, "index", "run.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertRun(runID, cfg.Seed, tune); err != nil {
			logger.Warn("index: upsert run", "err", err)
		}
		sinks.add("index", idx)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var obs *observer.Server
	if o.ObserveAddr != "" {
		obs = observer.NewServer(protocol.WelcomeMsg{
			RunID:  runID,
			Width:  cfg.Width,
			Height: cfg.Height,
			Agents: agentCount(cfg, snap),
		}, logger.With("component", "observer"))
		sinks.add("observer", obs)

		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusOK)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.HandleFunc("/v1/observe", obs.WSHandler())
		mux.HandleFunc("/v1/bootstrap", obs.BootstrapHandler())
		srv := &http.Server{Addr: o.ObserveAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("observer listening", "addr", o.ObserveAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("observer http", "err", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	opts := []world.Option{
		world.WithLogger(logger.With("run", runID)),
		world.WithSink(&sinks),
		world.WithRunID(runID),
	}
	var w *world.World
	if snap != nil {
		w, err = world.Restore(cfg, *snap, opts...)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		logger.Info("resumed", "snapshot", filepath.Base(o.ResumePath), "tick", w.Tick())
	} else {
		w, err = world.New(cfg, opts...)
		if err != nil {
			return fmt.Errorf("world: %w", err)
		}
	}
	logger.Info("run started", "run", runID, "seed", cfg.Seed, "ticks", ticks,
		"search", cfg.Protocols.Search, "matching", cfg.Protocols.Matching, "bargaining", cfg.Protocols.Bargaining)

	writeSnap := func() {
		if err := tickLog.Flush(); err != nil {
			logger.Warn("event log flush", "err", err)
		}
		if err := tradeLog.Flush(); err != nil {
			logger.Warn("trade log flush", "err", err)
		}
		s := w.ExportSnapshot()
		path := snapshot.Path(runDir, s.Header.Tick)
		if err := snapshot.WriteSnapshot(path, s); err != nil {
			logger.Warn("snapshot write", "err", err)
			return
		}
		if idx != nil {
			idx.RecordSnapshot(path, s)
		}
		logger.Info("snapshot written", "path", path, "tick", s.Header.Tick)
	}

	runErr := runLoop(ctx, w, ticks, o.TickRate, o.SnapshotEvery, writeSnap)
	writeSnap()

	if idx != nil {
		if st := idx.Stats(); st.DropTickTotal > 0 || st.DropSnapshotTotal > 0 {
			logger.Warn("index dropped entries", "ticks", st.DropTickTotal, "snapshots", st.DropSnapshotTotal)
		}
	}
	if obs != nil && obs.Dropped() > 0 {
		logger.Warn("observer dropped ticks", "count", obs.Dropped())
	}
	logger.Info("run finished", "tick", w.Tick(), "digest", w.Digest(), "stats", w.Stats())
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// runLoop advances the world in snapshotEvery-sized chunks. ticks == 0 runs
// until ctx is cancelled.
func runLoop(ctx context.Context, w *world.World, ticks, rate, snapshotEvery int, onSnapshot func()) error {
	if snapshotEvery <= 0 {
		return w.Run(ctx, ticks, rate)
	}
	for done := 0; ticks == 0 || done < ticks; {
		n := snapshotEvery
		if ticks > 0 && ticks-done < n {
			n = ticks - done
		}
		if err := w.Run(ctx, n, rate); err != nil {
			return err
		}
		done += n
		if ticks == 0 || done < ticks {
			onSnapshot()
		}
	}
	return nil
}

func agentCount(cfg world.Config, snap *snapshot.SnapshotV1) int {
	if snap != nil {
		return len(snap.Agents)
	}
	if len(cfg.Agents) > 0 {
		return len(cfg.Agents)
	}
	return cfg.Population.Count
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
