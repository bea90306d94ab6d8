package registry

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/protocols/bargaining"
)

func TestDefault_Names(t *testing.T) {
	r := Default()
	cases := map[protocols.Category][]string{
		protocols.CategorySearch:     {"distance_discounted", "myopic", "random"},
		protocols.CategoryMatching:   {"greedy_surplus", "random", "three_pass"},
		protocols.CategoryBargaining: {"compensating_block", "equal_split", "take_it_or_leave_it"},
	}
	for c, want := range cases {
		if got := r.Names(c); !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: got %v want %v", c, got, want)
		}
	}
	for _, m := range r.List(protocols.CategoryBargaining) {
		if m.Category != protocols.CategoryBargaining || m.Version == "" || len(m.Properties) == 0 {
			t.Fatalf("incomplete metadata: %+v", m)
		}
	}
}

func TestUnknownNameListsValid(t *testing.T) {
	_, err := Default().Matching("stable_marriage", nil)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Name != "stable_marriage" || ce.Category != protocols.CategoryMatching {
		t.Fatalf("unexpected error fields: %+v", ce)
	}
	if !strings.Contains(err.Error(), "greedy_surplus, random, three_pass") {
		t.Fatalf("error should list valid names: %v", err)
	}
}

func TestParamsValidatedBySchema(t *testing.T) {
	r := Default()
	if _, err := r.Bargaining("take_it_or_leave_it", map[string]any{"proposer": "loudest"}); err == nil {
		t.Fatalf("expected enum violation")
	}
	if _, err := r.Bargaining("compensating_block", map[string]any{"price_candidates": 0}); err == nil {
		t.Fatalf("expected minimum violation")
	}
	if _, err := r.Search("myopic", map[string]any{"radius": 2}); err == nil {
		t.Fatalf("expected additionalProperties violation")
	}
	b, err := r.Bargaining("take_it_or_leave_it", map[string]any{"proposer": "higher_id", "price_candidates": 9})
	if err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
	tl, ok := b.(*bargaining.TakeItOrLeaveIt)
	if !ok || tl.Proposer != bargaining.ProposerHigherID || tl.Grid.PriceCandidates != 9 {
		t.Fatalf("params not applied: %#v", b)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	meta := Metadata{Name: "x"}
	if err := r.RegisterBargaining(meta, bargaining.NewEqualSplit); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterBargaining(meta, bargaining.NewEqualSplit); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := r.RegisterBargaining(Metadata{Name: "bad", ParamsSchema: `{"type": 7}`}, bargaining.NewEqualSplit); err == nil {
		t.Fatalf("expected schema compile error")
	}
}

func TestBuildSelection(t *testing.T) {
	set, err := Default().Build(Selection{
		Search:     "distance_discounted",
		Matching:   "three_pass",
		Bargaining: "compensating_block",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if set.Search.Name() != "distance_discounted" || set.Matching.Name() != "three_pass" || set.Bargaining.Name() != "compensating_block" {
		t.Fatalf("unexpected set: %+v", set)
	}
}
