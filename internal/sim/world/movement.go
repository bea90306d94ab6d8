package world

import "tradegrid.ai/internal/sim/model"

// phaseMove walks every agent toward its target, x first then y, up to
// MoveBudget cells. Paired agents stop once within interaction range.
func (w *World) phaseMove() {
	for _, a := range w.agents {
		var dest model.Pos
		stopAt := 0
		switch a.Target.Kind {
		case model.TargetAgent:
			other, ok := w.byID[a.Target.AgentID]
			if !ok {
				continue
			}
			dest = other.Pos
			stopAt = w.cfg.InteractionRadius
		case model.TargetResource:
			dest = a.Target.Pos
		default:
			continue
		}
		p := a.Pos
		for step := 0; step < w.cfg.MoveBudget && model.Manhattan(p, dest) > stopAt; step++ {
			p = stepToward(p, dest)
		}
		if p != a.Pos {
			a.Pos = p
			w.idx.AddOrUpdate(a.ID, p)
		}
		if a.Target.Kind == model.TargetAgent {
			a.Target.Pos = dest
		}
	}
}

func stepToward(p, dest model.Pos) model.Pos {
	switch {
	case p.X < dest.X:
		p.X++
	case p.X > dest.X:
		p.X--
	case p.Y < dest.Y:
		p.Y++
	case p.Y > dest.Y:
		p.Y--
	}
	return p
}
