// Package ingest absorbs weather updates pushed by the companion device.
//
// Text fields are merged into the snapshot synchronously. Icon references
// become decode jobs stamped with a sequence number and the current session
// generation; the decode runs on a worker pool and its result is applied
// back on the owner's goroutine by Complete. Only the newest job of the
// current session may change the icon, so a slow early decode can never
// overwrite a later one and nothing lands after the face was hidden.
//
// Pipeline is not safe for concurrent use. All methods except the deliver
// callbacks handed to sources must be called from the engine loop.
package ingest

import (
	"context"
	"errors"

	"github.com/koios/matrx-watchface/pkg/models"
	"go.uber.org/zap"
)

// Source is a weather sync channel. Subscribe must not block on the network;
// deliver may be called from any goroutine until Unsubscribe returns.
type Source interface {
	Name() string
	Subscribe(ctx context.Context, deliver func(models.WeatherUpdate)) error
	Unsubscribe() error
}

// Delivery is an update tagged with the session it arrived in
type Delivery struct {
	Generation uint64
	Update     models.WeatherUpdate
}

// Pipeline owns the weather snapshot
type Pipeline struct {
	logger  *zap.Logger
	pool    *WorkerPool
	sources []Source

	snapshot models.WeatherSnapshot

	generation  uint64
	connected   bool
	session     context.Context
	cancel      context.CancelFunc
	seq         uint64
	inflightRef string
	inflight    bool
	jobCancel   context.CancelFunc
	// pendingRef is the newest ref, held back while the decode queue was full
	pendingRef string
	pending    bool
}

// NewPipeline creates a disconnected pipeline
func NewPipeline(pool *WorkerPool, logger *zap.Logger, sources ...Source) *Pipeline {
	return &Pipeline{
		logger:  logger,
		pool:    pool,
		sources: sources,
	}
}

// Snapshot returns a read-only value view of the current weather
func (p *Pipeline) Snapshot() models.WeatherSnapshot {
	return p.snapshot
}

// Connected reports whether the sources are subscribed
func (p *Pipeline) Connected() bool {
	return p.connected
}

// Generation identifies the current session
func (p *Pipeline) Generation() uint64 {
	return p.generation
}

// Results is the channel decode outcomes arrive on
func (p *Pipeline) Results() <-chan DecodeResult {
	return p.pool.Results()
}

// Connect starts a new session and subscribes every source. post is called
// from source goroutines and must hand the delivery to the engine loop,
// giving up once the session context is done.
func (p *Pipeline) Connect(post func(context.Context, Delivery)) {
	if p.connected {
		return
	}
	p.generation++
	p.connected = true
	p.session, p.cancel = context.WithCancel(context.Background())

	gen := p.generation
	session := p.session
	deliver := func(u models.WeatherUpdate) {
		post(session, Delivery{Generation: gen, Update: u})
	}

	for _, src := range p.sources {
		if err := src.Subscribe(p.session, deliver); err != nil {
			p.logger.Error("Failed to subscribe to weather source",
				zap.String("source", src.Name()),
				zap.Error(err))
			continue
		}
		p.logger.Debug("Subscribed to weather source",
			zap.String("source", src.Name()),
			zap.Uint64("generation", gen))
	}
}

// Disconnect ends the session: pending fetches are cancelled and any late
// delivery or decode result from it will be discarded
func (p *Pipeline) Disconnect() {
	if !p.connected {
		return
	}
	p.connected = false
	p.generation++
	p.cancel()
	p.cancelJob()
	p.inflight = false
	p.inflightRef = ""
	p.pending = false
	p.pendingRef = ""

	for _, src := range p.sources {
		if err := src.Unsubscribe(); err != nil {
			p.logger.Warn("Failed to unsubscribe from weather source",
				zap.String("source", src.Name()),
				zap.Error(err))
		}
	}
}

// Apply merges a delivery and schedules an icon decode if it carries a
// reference. It reports whether the snapshot changed.
func (p *Pipeline) Apply(d Delivery) bool {
	if !p.connected || d.Generation != p.generation {
		p.logger.Debug("Dropping weather update from a closed session",
			zap.Uint64("generation", d.Generation),
			zap.Uint64("current", p.generation))
		return false
	}

	next, changed := p.snapshot.Merge(d.Update)
	p.snapshot = next

	if ref := d.Update.IconRef; ref != nil {
		p.submitIcon(*ref)
	}
	return changed
}

func (p *Pipeline) submitIcon(ref string) {
	if p.pending && ref == p.pendingRef {
		p.logger.Debug("Icon decode already pending", zap.String("ref", ref))
		return
	}
	if !p.pending && p.inflight && ref == p.inflightRef {
		p.logger.Debug("Icon decode already in flight", zap.String("ref", ref))
		return
	}

	// the bumped seq retires every older job; cancelling its context lets
	// the workers skip it instead of fetching an icon nobody will use
	p.seq++
	p.cancelJob()
	p.trySubmit(ref)
}

// trySubmit queues the job for the current seq. A full queue parks the ref
// until a worker hands back a result.
func (p *Pipeline) trySubmit(ref string) {
	ctx, cancel := context.WithCancel(p.session)
	job := DecodeJob{Seq: p.seq, Generation: p.generation, Ref: ref}

	err := p.pool.Submit(ctx, job)
	switch {
	case err == nil:
		p.jobCancel = cancel
		p.inflight = true
		p.inflightRef = ref
		p.pending = false
		p.pendingRef = ""
	case errors.Is(err, ErrQueueFull):
		cancel()
		p.inflight = false
		p.inflightRef = ""
		p.pending = true
		p.pendingRef = ref
		p.logger.Debug("Decode queue full, holding icon update",
			zap.String("ref", ref),
			zap.Uint64("seq", job.Seq))
	default:
		cancel()
		p.inflight = false
		p.inflightRef = ""
		p.pending = false
		p.pendingRef = ""
		p.logger.Warn("Dropping icon update",
			zap.String("ref", ref),
			zap.Uint64("seq", job.Seq),
			zap.Error(err))
	}
}

func (p *Pipeline) cancelJob() {
	if p.jobCancel != nil {
		p.jobCancel()
		p.jobCancel = nil
	}
}

// Complete applies a decode result if it belongs to the newest job of the
// current session. It reports whether the icon changed.
func (p *Pipeline) Complete(r DecodeResult) bool {
	// every result frees a queue slot
	if p.connected && p.pending {
		p.trySubmit(p.pendingRef)
	}

	if !p.connected || r.Generation != p.generation {
		p.logger.Debug("Discarding icon decoded after the session ended",
			zap.Uint64("seq", r.Seq),
			zap.String("ref", r.Ref))
		return false
	}
	if r.Seq != p.seq {
		p.logger.Debug("Discarding superseded icon",
			zap.Uint64("seq", r.Seq),
			zap.Uint64("latest", p.seq))
		return false
	}

	p.inflight = false
	p.inflightRef = ""
	p.cancelJob()

	if r.Err != nil {
		p.logger.Warn("Icon update failed, keeping previous icon",
			zap.String("ref", r.Ref),
			zap.Error(r.Err))
		return false
	}
	p.snapshot.Icon = r.Image
	return true
}
