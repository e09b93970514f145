package face

import "github.com/koios/matrx-watchface/pkg/models"

// Effects are the follow-up actions a lifecycle transition asks the engine to perform
type Effects struct {
	// Reschedule cancels the refresh timer and re-arms it if the new state allows.
	Reschedule  bool
	Subscribe   bool
	Unsubscribe bool
	ResyncZone  bool
	// Relayout selects the round or square layout set.
	Relayout bool
	Round    bool
	Redraw   bool
}

// Transition applies one lifecycle event to the power state
func Transition(s models.PowerState, ev models.LifecycleEvent) (models.PowerState, Effects) {
	var fx Effects

	switch ev.Kind {
	case models.KindVisibility:
		wasVisible := s.Visible
		s.Visible = ev.Visible
		fx.Reschedule = true
		if ev.Visible {
			// the zone may have changed while hidden
			fx.ResyncZone = true
			fx.Redraw = true
			fx.Subscribe = !wasVisible
		} else {
			fx.Unsubscribe = wasVisible
		}

	case models.KindAmbientMode:
		changed := s.Ambient != ev.Ambient
		s.Ambient = ev.Ambient
		fx.Reschedule = true
		fx.Redraw = changed && s.Visible

	case models.KindProperties:
		if !s.LowBitKnown {
			s.LowBitAmbient = ev.LowBitAmbient
			s.LowBitKnown = true
			fx.Redraw = s.Visible && s.Ambient
		}

	case models.KindInsets:
		fx.Relayout = true
		fx.Round = ev.Round
		fx.Redraw = s.Visible

	case models.KindTimeTick:
		fx.Redraw = s.Visible

	case models.KindTap:
		if ev.Tap == models.TapCompleted {
			s.TapCount++
			fx.Redraw = s.Visible
		}

	case models.KindTimezoneChanged:
		fx.ResyncZone = true
		fx.Redraw = s.Visible

	case models.KindPeekCard:
		fx.Redraw = s.Visible
	}

	return s, fx
}
