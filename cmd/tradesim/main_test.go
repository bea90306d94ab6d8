package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"tradegrid.ai/internal/persistence/snapshot"
)

func TestRun_WritesLogsSnapshotAndResumes(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfgPath := filepath.Join("..", "..", "configs", "two_agent_barter.yaml")

	if err := run(logger, runOptions{ConfigPath: cfgPath, Ticks: 6, DataDir: dir, SnapshotEvery: 4, SegmentTicks: 100}); err != nil {
		t.Fatalf("run: %v", err)
	}

	snaps, _ := filepath.Glob(filepath.Join(dir, "runs", "*", "snapshots", "*.snap.zst"))
	if len(snaps) != 2 {
		t.Fatalf("expected snapshots at tick 4 and 6, got %v", snaps)
	}
	events, _ := filepath.Glob(filepath.Join(dir, "runs", "*", "events", "*.jsonl.zst"))
	if len(events) != 1 {
		t.Fatalf("expected one event segment, got %v", events)
	}
	dbs, _ := filepath.Glob(filepath.Join(dir, "runs", "*", "index", "run.sqlite"))
	if len(dbs) != 1 {
		t.Fatalf("expected index db, got %v", dbs)
	}

	last := snapshot.Path(filepath.Dir(filepath.Dir(snaps[0])), 6)
	h, err := snapshot.ReadHeader(last)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.Tick != 6 {
		t.Fatalf("final snapshot tick=%d", h.Tick)
	}

	if err := run(logger, runOptions{ConfigPath: cfgPath, Ticks: 3, DataDir: dir, ResumePath: last, DisableDB: true, SegmentTicks: 100}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h2, err := snapshot.ReadHeader(snapshot.Path(filepath.Dir(filepath.Dir(snaps[0])), 9))
	if err != nil {
		t.Fatalf("resumed snapshot: %v", err)
	}
	if h2.RunID != h.RunID {
		t.Fatalf("resume changed run id: %s -> %s", h.RunID, h2.RunID)
	}
}
