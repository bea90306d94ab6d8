// Package spatial provides a bucketed grid index for Manhattan-radius
// proximity queries over moving agents.
package spatial

import (
	"fmt"
	"sort"

	"tradegrid.ai/internal/sim/model"
)

type bucketKey struct{ bx, by int }

// Index maps agent ids to positions and buckets. Bucket size should equal
// the largest radius queried so a query touches at most 3x3 buckets.
type Index struct {
	bucketSize int
	pos        map[int]model.Pos
	buckets    map[bucketKey]map[int]struct{}
}

func New(bucketSize int) *Index {
	if bucketSize < 1 {
		bucketSize = 1
	}
	return &Index{
		bucketSize: bucketSize,
		pos:        map[int]model.Pos{},
		buckets:    map[bucketKey]map[int]struct{}{},
	}
}

func (ix *Index) BucketSize() int { return ix.bucketSize }

func (ix *Index) Len() int { return len(ix.pos) }

func (ix *Index) key(p model.Pos) bucketKey {
	return bucketKey{floorDiv(p.X, ix.bucketSize), floorDiv(p.Y, ix.bucketSize)}
}

// AddOrUpdate inserts id at p, moving it between buckets if needed.
func (ix *Index) AddOrUpdate(id int, p model.Pos) {
	if old, ok := ix.pos[id]; ok {
		if old == p {
			return
		}
		if oldKey := ix.key(old); oldKey != ix.key(p) {
			ix.detach(id, oldKey)
		}
	}
	ix.pos[id] = p
	k := ix.key(p)
	b := ix.buckets[k]
	if b == nil {
		b = map[int]struct{}{}
		ix.buckets[k] = b
	}
	b[id] = struct{}{}
}

// Remove deletes id. Removing an unknown id panics.
func (ix *Index) Remove(id int) {
	p, ok := ix.pos[id]
	if !ok {
		panic(fmt.Sprintf("spatial: remove unknown agent %d", id))
	}
	ix.detach(id, ix.key(p))
	delete(ix.pos, id)
}

func (ix *Index) detach(id int, k bucketKey) {
	b := ix.buckets[k]
	delete(b, id)
	if len(b) == 0 {
		delete(ix.buckets, k)
	}
}

// Position returns the indexed position of id. Unknown ids panic.
func (ix *Index) Position(id int) model.Pos {
	p, ok := ix.pos[id]
	if !ok {
		panic(fmt.Sprintf("spatial: unknown agent %d", id))
	}
	return p
}

// Has reports whether id is indexed.
func (ix *Index) Has(id int) bool {
	_, ok := ix.pos[id]
	return ok
}

// QueryRadius returns ids within Manhattan distance r of p, ascending,
// excluding exclude (pass model.NoAgent to keep all).
func (ix *Index) QueryRadius(p model.Pos, r int, exclude int) []int {
	if r < 0 {
		return nil
	}
	lo := ix.key(model.Pos{X: p.X - r, Y: p.Y - r})
	hi := ix.key(model.Pos{X: p.X + r, Y: p.Y + r})
	var out []int
	for by := lo.by; by <= hi.by; by++ {
		for bx := lo.bx; bx <= hi.bx; bx++ {
			for id := range ix.buckets[bucketKey{bx, by}] {
				if id == exclude {
					continue
				}
				if model.Manhattan(p, ix.pos[id]) <= r {
					out = append(out, id)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// Pair is an unordered agent pair with Lo < Hi.
type Pair struct {
	Lo int
	Hi int
}

// QueryAllPairsWithin returns every unordered pair within Manhattan distance
// r exactly once, sorted by (Lo, Hi).
func (ix *Index) QueryAllPairsWithin(r int) []Pair {
	ids := ix.IDs()
	var out []Pair
	for _, id := range ids {
		for _, other := range ix.QueryRadius(ix.pos[id], r, id) {
			if other > id {
				out = append(out, Pair{Lo: id, Hi: other})
			}
		}
	}
	return out
}

// IDs returns all indexed ids ascending.
func (ix *Index) IDs() []int {
	ids := make([]int, 0, len(ix.pos))
	for id := range ix.pos {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Verify checks that every id sits in exactly the bucket its position maps
// to and reports the first inconsistency.
func (ix *Index) Verify() error {
	seen := 0
	for k, b := range ix.buckets {
		for id := range b {
			p, ok := ix.pos[id]
			if !ok {
				return fmt.Errorf("spatial: bucket %v holds unindexed agent %d", k, id)
			}
			if ix.key(p) != k {
				return fmt.Errorf("spatial: agent %d at %v filed under bucket %v", id, p, k)
			}
			seen++
		}
	}
	if seen != len(ix.pos) {
		return fmt.Errorf("spatial: %d bucket entries for %d agents", seen, len(ix.pos))
	}
	return nil
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
