// Package face coordinates the watch face: lifecycle events drive a power
// state machine whose effects re-arm the refresh timer, bracket the weather
// subscription and request redraws. Everything runs on the single goroutine
// executing Engine.Run; the icon decode workers hand their results back over
// a channel.
package face

import (
	"context"
	"errors"
	"image"

	"code.cloudfoundry.org/clock"
	"github.com/koios/matrx-watchface/internal/ingest"
	"github.com/koios/matrx-watchface/internal/render"
	"github.com/koios/matrx-watchface/pkg/models"
	"go.uber.org/zap"
)

// ErrEngineStopped is returned by Post once Run has returned
var ErrEngineStopped = errors.New("engine stopped")

// Surface is where frames are painted
type Surface interface {
	Bounds() image.Rectangle
	Paint(drawFrame func(render.Canvas)) error
}

// Options wires an Engine to its collaborators
type Options struct {
	Theme    *models.Theme
	Clock    clock.Clock
	Zone     ZoneResolver
	Weather  *ingest.Pipeline
	Surface  Surface
	PeekCard render.PeekCard
	Logger   *zap.Logger
	// Round picks the initial layout until insets are applied.
	Round bool
}

type message struct {
	event    *models.LifecycleEvent
	delivery *ingest.Delivery
}

// Engine owns the power state, the refresh scheduler and the weather pipeline
type Engine struct {
	logger    *zap.Logger
	theme     *models.Theme
	clock     *Clock
	scheduler *Scheduler
	weather   *ingest.Pipeline
	surface   Surface
	peek      render.PeekCard

	power  models.PowerState
	layout models.Layout
	dirty  bool
	paints int

	inbox chan message
	done  chan struct{}
}

// NewEngine creates an engine in the Hidden state
func NewEngine(opts Options) *Engine {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		logger:    logger,
		theme:     opts.Theme,
		clock:     NewClock(clk, opts.Zone),
		scheduler: NewScheduler(clk, InteractiveUpdateRate),
		weather:   opts.Weather,
		surface:   opts.Surface,
		peek:      opts.PeekCard,
		layout:    opts.Theme.Layout(opts.Round),
		inbox:     make(chan message, 64),
		done:      make(chan struct{}),
	}
}

// Post queues a lifecycle event for the engine loop
func (e *Engine) Post(ctx context.Context, ev models.LifecycleEvent) error {
	return e.enqueue(ctx, message{event: &ev})
}

func (e *Engine) deliver(ctx context.Context, d ingest.Delivery) {
	if err := e.enqueue(ctx, message{delivery: &d}); err != nil {
		e.logger.Debug("Dropping weather update", zap.Error(err))
	}
}

func (e *Engine) enqueue(ctx context.Context, msg message) error {
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}

	select {
	case e.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

// Run is the render loop. It returns when ctx is cancelled, after cancelling
// the timer and disconnecting the weather sources.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()
	defer close(e.done)

	e.logger.Info("Watch face engine started", zap.String("mode", e.power.Mode().String()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-e.inbox:
			e.handle(msg)
		case <-e.scheduler.C():
			e.onTick()
		case r := <-e.weather.Results():
			e.onDecoded(r)
		}

		// requests queued behind this one collapse into the same paint
		if len(e.inbox) == 0 {
			e.flush()
		}
	}
}

func (e *Engine) handle(msg message) {
	switch {
	case msg.event != nil:
		e.dispatch(*msg.event)
	case msg.delivery != nil:
		if e.weather.Apply(*msg.delivery) {
			e.requestRedraw()
		}
	}
}

// dispatch runs one lifecycle event through the state machine and applies its effects
func (e *Engine) dispatch(ev models.LifecycleEvent) {
	prev := e.power
	next, fx := Transition(prev, ev)
	e.power = next

	if prev.Mode() != next.Mode() {
		e.logger.Info("Watch face mode changed",
			zap.String("from", prev.Mode().String()),
			zap.String("to", next.Mode().String()))
	}
	if prev.AntiAlias() != next.AntiAlias() {
		e.logger.Debug("Time text anti-aliasing changed", zap.Bool("anti_alias", next.AntiAlias()))
	}

	e.apply(fx)
}

func (e *Engine) apply(fx Effects) {
	if fx.ResyncZone {
		e.clock.Resync()
		e.logger.Debug("Clock zone synced", zap.String("zone", e.clock.Location().String()))
	}
	if fx.Relayout {
		e.layout = e.theme.Layout(fx.Round)
	}
	if fx.Subscribe {
		e.weather.Connect(e.deliver)
	}
	if fx.Unsubscribe {
		e.weather.Disconnect()
	}
	if fx.Reschedule {
		e.scheduler.Reset(e.power.ShouldTick())
	}
	if fx.Redraw {
		e.requestRedraw()
	}
}

func (e *Engine) onTick() {
	e.scheduler.Fired()
	e.requestRedraw()
	e.scheduler.Arm(e.power.ShouldTick())
}

func (e *Engine) onDecoded(r ingest.DecodeResult) {
	if e.weather.Complete(r) {
		e.requestRedraw()
	}
}

func (e *Engine) requestRedraw() {
	e.dirty = true
}

// flush paints if a redraw is pending. While hidden the request is kept for
// the next visible period.
func (e *Engine) flush() {
	if !e.dirty || !e.power.Visible {
		return
	}
	e.paint()
}

func (e *Engine) paint() {
	in := render.Inputs{
		Clock:   e.clock.Snapshot(),
		Weather: e.weather.Snapshot(),
		Power:   e.power,
		Layout:  e.layout,
		Palette: e.theme.Palette,
	}
	bounds := e.surface.Bounds()

	e.dirty = false
	e.paints++
	if err := e.surface.Paint(func(c render.Canvas) {
		render.Draw(c, bounds, in, e.peek)
	}); err != nil {
		e.logger.Error("Failed to paint frame", zap.Error(err))
	}
}

func (e *Engine) shutdown() {
	e.scheduler.Cancel()
	e.weather.Disconnect()
	e.logger.Info("Watch face engine stopped", zap.Int("frames", e.paints))
}
