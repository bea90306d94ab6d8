package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tradegrid.ai/internal/persistence/snapshot"
	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/tuning"
	"tradegrid.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		configPath = flag.String("config", "", "run file the snapshot was produced with (required with -events)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d run=%s tick=%d seed=%d mode=%s agents=%d resources=%d markets=%d trades=%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Tick, snap.Seed, snap.Mode,
		len(snap.Agents), len(snap.Resources), len(snap.Markets), snap.Stats.BilateralTrades+snap.Stats.MarketTrades)

	if *eventsDir == "" {
		return
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "missing -config")
		os.Exit(2)
	}
	tune, err := tuning.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	tune.Run.Seed = snap.Seed
	cfg, err := world.FromTuning(tune)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	checked, err := replay(cfg, snap, *eventsDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
}

// replay restores snap and steps it against every logged tick, comparing
// state digests and event counts.
func replay(cfg world.Config, snap snapshot.SnapshotV1, eventsDir string, fromTick, toTick uint64) (uint64, error) {
	sink := &lastTick{}
	w, err := world.Restore(cfg, snap, world.WithSink(sink))
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	startTick := w.Tick()
	verifyFrom := fromTick
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	files, err := listEventFiles(eventsDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no events files found in %s", eventsDir)
	}

	var checked uint64
	for _, path := range files {
		if err := replayFile(w, sink, path, startTick, verifyFrom, toTick, &checked); err != nil {
			return checked, err
		}
		if toTick != 0 && w.Tick() > toTick {
			break
		}
	}
	return checked, nil
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

type lastTick struct{ msg protocol.TickMsg }

func (l *lastTick) WriteTick(m protocol.TickMsg) error {
	l.msg = m
	return nil
}

func replayFile(w *world.World, sink *lastTick, path string, startTick, verifyFrom, toTick uint64, checked *uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry protocol.TickMsg
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Tick < startTick {
			continue
		}
		if toTick != 0 && entry.Tick > toTick {
			return nil
		}
		if entry.Tick != w.Tick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", w.Tick(), entry.Tick, filepath.Base(path))
		}

		tick, gotDigest := w.StepOnce()
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
		}

		if tick >= verifyFrom {
			*checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
			if len(sink.msg.Events) != len(entry.Events) {
				return fmt.Errorf("event count mismatch at tick %d: got=%d want=%d", tick, len(sink.msg.Events), len(entry.Events))
			}
		}
	}
	return sc.Err()
}
