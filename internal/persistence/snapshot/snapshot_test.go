package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, 42)
	claim := [2]int{3, 4}
	in := SnapshotV1{
		Header:   Header{Version: Version, RunID: "r1", Tick: 42, Digest: "abc"},
		Seed:     7,
		RngDraws: 1234,
		Mode:     "both",
		Agents: []AgentV1{{
			ID:        1,
			Pos:       [2]int{3, 4},
			Inventory: [3]string{"8", "2.5", "0"},
			Utility:   UtilityV1{Type: "ces", Params: map[string]float64{"rho": -0.5}},
			Lambda:    1,
			PartnerID: -1,
			Cooldowns: map[int]uint64{2: 47},
			Target:    TargetV1{Kind: 2, AgentID: -1, Pos: [2]int{3, 4}},
			Claim:     &claim,
		}},
		Resources:    []ResourceV1{{Pos: [2]int{3, 4}, Good: 1, Amount: "4", ClaimedBy: 1}},
		Markets:      []MarketV1{{ID: 0, Center: [2]int{1, 1}, Participants: []int{1, 2, 3}, Prices: map[string]string{"A<->B": "1.25"}, Volume: "3"}},
		NextMarketID: 1,
		Stats:        StatsV1{Ticks: 42, BilateralTrades: 5, PairsFormed: map[string]int{"mutual_consent": 2}},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(dir, "snapshots") {
		t.Fatalf("unexpected path %s", path)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Tick != 42 || h.RunID != "r1" || h.Digest != "abc" {
		t.Fatalf("header mismatch: %+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.RngDraws != 1234 || out.Seed != 7 || out.NextMarketID != 1 {
		t.Fatalf("scalars mismatch: %+v", out)
	}
	if len(out.Agents) != 1 || out.Agents[0].Inventory[1] != "2.5" || out.Agents[0].Cooldowns[2] != 47 {
		t.Fatalf("agent mismatch: %+v", out.Agents)
	}
	if out.Agents[0].Claim == nil || *out.Agents[0].Claim != claim {
		t.Fatalf("claim lost: %+v", out.Agents[0].Claim)
	}
	if out.Markets[0].Prices["A<->B"] != "1.25" || out.Stats.PairsFormed["mutual_consent"] != 2 {
		t.Fatalf("market/stats mismatch: %+v %+v", out.Markets, out.Stats)
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
