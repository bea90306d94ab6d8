// Package snapshot persists full simulation state so a run can resume at a
// tick boundary and continue bit-identically.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
}

// SnapshotV1 holds everything needed to resume. Decimal amounts are stored
// as their exact string form.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed int64 `json:"seed"`
	// RngDraws is how many values the seeded generator has produced.
	RngDraws uint64 `json:"rng_draws"`
	Mode     string `json:"mode"`

	Agents    []AgentV1    `json:"agents"`
	Resources []ResourceV1 `json:"resources,omitempty"`
	Markets   []MarketV1   `json:"markets,omitempty"`

	NextMarketID int     `json:"next_market_id"`
	Stats        StatsV1 `json:"stats"`
}

type AgentV1 struct {
	ID        int            `json:"id"`
	Pos       [2]int         `json:"pos"`
	Inventory [3]string      `json:"inventory"`
	Utility   UtilityV1      `json:"utility"`
	Lambda    float64        `json:"lambda"`
	PartnerID int            `json:"partner_id"`
	PairedAt  uint64         `json:"paired_tick"`
	Cooldowns map[int]uint64 `json:"cooldowns,omitempty"`
	Target    TargetV1       `json:"target"`
	Claim     *[2]int        `json:"claim,omitempty"`
}

type UtilityV1 struct {
	Type   string             `json:"type"`
	Params map[string]float64 `json:"params,omitempty"`
}

type TargetV1 struct {
	Kind    uint8  `json:"kind"`
	AgentID int    `json:"agent_id"`
	Pos     [2]int `json:"pos"`
}

type ResourceV1 struct {
	Pos         [2]int `json:"pos"`
	Good        uint8  `json:"good"`
	Amount      string `json:"amount"`
	ClaimedBy   int    `json:"claimed_by"`
	LastHarvest uint64 `json:"last_harvest"`
	Harvested   bool   `json:"harvested"`
}

type MarketV1 struct {
	ID           int               `json:"id"`
	Center       [2]int            `json:"center"`
	Participants []int             `json:"participants"`
	FormedTick   uint64            `json:"formed_tick"`
	BelowTicks   int               `json:"below_ticks"`
	Prices       map[string]string `json:"prices,omitempty"`
	Volume       string            `json:"volume"`
	Trades       int               `json:"trades"`
	Clears       int               `json:"clears"`
}

type StatsV1 struct {
	Ticks           uint64            `json:"ticks"`
	BilateralTrades int               `json:"bilateral_trades"`
	MarketTrades    int               `json:"market_trades"`
	Volume          map[string]string `json:"volume,omitempty"`
	PairsFormed     map[string]int    `json:"pairs_formed,omitempty"`
	PairsDissolved  map[string]int    `json:"pairs_dissolved,omitempty"`
	MarketsFormed   int               `json:"markets_formed"`
	MarketClears    int               `json:"market_clears"`
	NotConverged    int               `json:"not_converged"`
	Foraged         map[string]string `json:"foraged,omitempty"`
}

// Path is the conventional location of the snapshot for tick under dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, "snapshots", fmt.Sprintf("%012d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	hl, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(hl, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader returns only the header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	hl, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(hl, &h)
	return h, err
}
