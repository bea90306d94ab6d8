package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"tradegrid.ai/internal/sim/model"
)

func digestWriteU64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func digestWriteI64(h hash.Hash, v int64) { digestWriteU64(h, uint64(v)) }

func digestWriteString(h hash.Hash, s string) {
	digestWriteU64(h, uint64(len(s)))
	h.Write([]byte(s))
}

func digestAgent(h hash.Hash, a *model.Agent) {
	digestWriteI64(h, int64(a.ID))
	digestWriteI64(h, int64(a.Pos.X))
	digestWriteI64(h, int64(a.Pos.Y))
	for _, g := range model.AllGoods {
		digestWriteString(h, a.Inventory.Get(g).String())
	}
	digestWriteI64(h, int64(a.PartnerID))
	digestWriteU64(h, a.PairedTick)
	h.Write([]byte{byte(a.Target.Kind)})
	digestWriteI64(h, int64(a.Target.AgentID))
	digestWriteI64(h, int64(a.Target.Pos.X))
	digestWriteI64(h, int64(a.Target.Pos.Y))
	if a.Claim != nil {
		h.Write([]byte{1})
		digestWriteI64(h, int64(a.Claim.X))
		digestWriteI64(h, int64(a.Claim.Y))
	} else {
		h.Write([]byte{0})
	}
	ids := a.CooldownIDs()
	digestWriteU64(h, uint64(len(ids)))
	for _, id := range ids {
		digestWriteI64(h, int64(id))
		digestWriteU64(h, a.Cooldowns[id])
	}
}

// StateDigest hashes the full simulation state in canonical order. Two
// worlds with equal digests at the same tick evolve identically.
func (w *World) StateDigest() string {
	h := sha256.New()
	digestWriteU64(h, w.tick)
	digestWriteString(h, string(w.mode))
	digestWriteU64(h, w.src.draws)

	digestWriteU64(h, uint64(len(w.agents)))
	for _, a := range w.agents {
		digestAgent(h, a)
	}

	positions := sortedPositions(w.resources)
	digestWriteU64(h, uint64(len(positions)))
	for _, p := range positions {
		r := w.resources[p]
		digestWriteI64(h, int64(p.X))
		digestWriteI64(h, int64(p.Y))
		h.Write([]byte{byte(r.Good)})
		digestWriteString(h, r.Amount.String())
		digestWriteI64(h, int64(r.ClaimedBy))
		digestWriteU64(h, r.LastHarvest)
	}

	areas := w.markets.Areas()
	digestWriteU64(h, uint64(len(areas)))
	for _, a := range areas {
		digestWriteI64(h, int64(a.ID))
		digestWriteI64(h, int64(a.Center.X))
		digestWriteI64(h, int64(a.Center.Y))
		digestWriteI64(h, int64(a.BelowTicks))
		digestWriteU64(h, uint64(len(a.Participants)))
		for _, id := range a.Participants {
			digestWriteI64(h, int64(id))
		}
		pts := make([]model.PairType, 0, len(a.Prices))
		for pt := range a.Prices {
			pts = append(pts, pt)
		}
		sort.Slice(pts, func(i, j int) bool { return pts[i] < pts[j] })
		for _, pt := range pts {
			h.Write([]byte{byte(pt)})
			digestWriteString(h, a.Prices[pt].String())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// agentDigest hashes one agent, used to detect protocol-side mutation.
func agentDigest(a *model.Agent) string {
	h := sha256.New()
	digestAgent(h, a)
	return hex.EncodeToString(h.Sum(nil))
}
