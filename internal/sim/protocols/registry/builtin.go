package registry

import (
	"tradegrid.ai/internal/sim/protocols/bargaining"
	"tradegrid.ai/internal/sim/protocols/matching"
	"tradegrid.ai/internal/sim/protocols/search"
)

const gridParamsSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "price_candidates": {"type": "integer", "minimum": 1, "maximum": 1000},
    "whole_unit_prices": {"type": "integer", "minimum": 0, "maximum": 10000},
    "max_quantity": {"type": "integer", "minimum": 0}
  }
}`

const tioliParamsSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "price_candidates": {"type": "integer", "minimum": 1, "maximum": 1000},
    "whole_unit_prices": {"type": "integer", "minimum": 0, "maximum": 10000},
    "max_quantity": {"type": "integer", "minimum": 0},
    "proposer": {"enum": ["random", "lower_id", "higher_id"]}
  }
}`

// Default returns a registry holding every built-in protocol.
func Default() *Registry {
	r := New()
	must(r.RegisterSearch(Metadata{
		Name:        search.NameDistanceDiscounted,
		Description: "Ranks visible partners and forage sites by surplus discounted by beta^distance.",
		Properties:  []string{PropDeterministic},
	}, search.NewDistanceDiscounted))
	must(r.RegisterSearch(Metadata{
		Name:        search.NameMyopic,
		Description: "Distance-discounted ranking restricted to adjacent candidates.",
		Properties:  []string{PropDeterministic},
	}, search.NewMyopic))
	must(r.RegisterSearch(Metadata{
		Name:        search.NameRandom,
		Description: "Shuffles eligible candidates without scoring.",
		Properties:  []string{PropStochastic},
	}, search.NewRandom))

	must(r.RegisterMatching(Metadata{
		Name:        matching.NameThreePass,
		Description: "Mutual consent, then greedy by score, then fallback to foraging or idle.",
		Properties:  []string{PropDeterministic},
	}, matching.NewThreePass))
	must(r.RegisterMatching(Metadata{
		Name:        matching.NameRandom,
		Description: "Shuffles trade seekers and pairs them sequentially.",
		Properties:  []string{PropStochastic},
	}, matching.NewRandom))
	must(r.RegisterMatching(Metadata{
		Name:        matching.NameGreedySurplus,
		Description: "Central planner pairing by distance-discounted total surplus.",
		Properties:  []string{PropDeterministic},
	}, matching.NewGreedySurplus))

	must(r.RegisterBargaining(Metadata{
		Name:         bargaining.NameCompensatingBlock,
		Description:  "First mutually improving quantity and price in search order.",
		Properties:   []string{PropDeterministic},
		ParamsSchema: gridParamsSchema,
	}, bargaining.NewCompensatingBlock))
	must(r.RegisterBargaining(Metadata{
		Name:         bargaining.NameEqualSplit,
		Description:  "Mutually improving trade whose surplus split is closest to even.",
		Properties:   []string{PropDeterministic},
		ParamsSchema: gridParamsSchema,
	}, bargaining.NewEqualSplit))
	must(r.RegisterBargaining(Metadata{
		Name:         bargaining.NameTakeItOrLeaveIt,
		Description:  "Proposer maximizes its own gain subject to the responder strictly gaining.",
		Properties:   []string{PropStochastic},
		ParamsSchema: tioliParamsSchema,
	}, bargaining.NewTakeItOrLeaveIt))
	return r
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
