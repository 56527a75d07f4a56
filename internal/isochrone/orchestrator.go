// Package isochrone turns a stream of parameter, address and center events
// into debounced, rate-limited, cancellable isochrone requests.
package isochrone

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/config"
	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/resilience"
	"github.com/sells-group/orsmap/pkg/ors"
)

// API is the part of the ORS client the orchestrator calls.
type API interface {
	Isochrones(ctx context.Context, req ors.IsochroneRequest) (*geojson.FeatureCollection, error)
	Geocode(ctx context.Context, text string) ([]model.Place, error)
	ReverseGeocode(ctx context.Context, p model.LatLng) (*model.Place, error)
}

// CenterSource exposes the map state used to pick an isochrone center.
type CenterSource interface {
	// CenterMarker returns the explicit center marker if it is visible.
	CenterMarker() (model.LatLng, bool)
	// LastSelected returns the last clicked or searched point.
	LastSelected() (model.LatLng, bool)
	// ViewportCenter returns the middle of the visible map.
	ViewportCenter() (model.LatLng, bool)
	// SetLastSelected records a point without announcing a center update.
	SetLastSelected(p model.LatLng)
}

// Renderer draws isochrone results.
type Renderer interface {
	Render(fc *geojson.FeatureCollection) int
	Clear()
}

// Options holds the timing policy.
type Options struct {
	Debounce        time.Duration
	MinInterval     time.Duration
	AddressDebounce time.Duration
	MaxCandidates   int
	Clock           clock.Clock
}

// DefaultOptions returns the standard policy: 600ms debounce, 1s minimum
// spacing between accepted attempts, 600ms address debounce.
func DefaultOptions() Options {
	return Options{
		Debounce:        600 * time.Millisecond,
		MinInterval:     time.Second,
		AddressDebounce: 600 * time.Millisecond,
		MaxCandidates:   5,
	}
}

// OptionsFromConfig builds Options from configuration.
func OptionsFromConfig(cfg config.IsochroneConfig) Options {
	opts := DefaultOptions()
	opts.Debounce = cfg.Debounce()
	opts.MinInterval = cfg.MinInterval()
	opts.AddressDebounce = cfg.AddressDebounce()
	return opts
}

// Orchestrator owns the isochrone request lifecycle of one map session.
// At most one attempt is current; starting a new one cancels the previous
// attempt, and results from superseded attempts are discarded.
type Orchestrator struct {
	bus      *events.Bus
	api      API
	centers  CenterSource
	renderer Renderer
	opts     Options
	clock    clock.Clock

	ctx  context.Context
	stop context.CancelFunc

	mu                sync.Mutex
	closed            bool
	timer             *clock.Timer
	timerSeq          uint64
	pending           model.RequestDetail
	pendingExplicit   bool
	started           bool
	lastStart         time.Time
	epoch             uint64
	cancel            context.CancelFunc
	markerRecentlySet bool

	addressTimer  *clock.Timer
	addressSeq    uint64
	addressCancel context.CancelFunc

	// renderMu orders the epoch check with the draw so a superseded
	// attempt can never draw after a newer one.
	renderMu sync.Mutex

	wg          sync.WaitGroup
	unsubscribe []func()
}

// New wires an orchestrator to bus. centers may be nil, in which case only
// addresses can supply a center.
func New(bus *events.Bus, api API, centers CenterSource, renderer Renderer, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultOptions().MaxCandidates
	}
	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		bus:      bus,
		api:      api,
		centers:  centers,
		renderer: renderer,
		opts:     opts,
		clock:    opts.Clock,
		ctx:      ctx,
		stop:     stop,
	}
	o.unsubscribe = []func(){
		bus.ParametersChanged.Subscribe(o.onParametersChanged),
		bus.GenerateRequested.Subscribe(o.onGenerateRequested),
		bus.AddressIntent.Subscribe(o.onAddressIntent),
		bus.CenterUpdated.Subscribe(o.onCenterUpdated),
	}
	return o
}

// Close stops timers, cancels in-flight calls and waits for them to return.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
	}
	if o.addressTimer != nil {
		o.addressTimer.Stop()
	}
	o.mu.Unlock()

	for _, u := range o.unsubscribe {
		u()
	}
	o.stop()
	o.wg.Wait()
}

// Epoch returns the number of accepted attempts so far.
func (o *Orchestrator) Epoch() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epoch
}

// Suppressed reports whether parameter edits are currently ignored because
// the center was just set explicitly.
func (o *Orchestrator) Suppressed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.markerRecentlySet
}

func (o *Orchestrator) onParametersChanged(d model.RequestDetail) {
	o.mu.Lock()
	if o.markerRecentlySet {
		o.mu.Unlock()
		zap.L().Debug("isochrone: parameter change ignored after explicit center set")
		return
	}
	o.scheduleLocked(d, false)
	o.mu.Unlock()
}

func (o *Orchestrator) onGenerateRequested(d model.RequestDetail) {
	o.mu.Lock()
	o.scheduleLocked(d, true)
	o.mu.Unlock()
}

// onCenterUpdated turns on suppression for an explicit center. A pending
// parameter-triggered attempt is canceled with it; a pending generate
// request still fires.
func (o *Orchestrator) onCenterUpdated(u events.CenterUpdate) {
	if u.Source == model.CenterFromMarker && u.Visible {
		o.mu.Lock()
		o.markerRecentlySet = true
		if o.timer != nil && !o.pendingExplicit {
			o.timer.Stop()
			o.timer = nil
			o.timerSeq++
			zap.L().Debug("isochrone: pending parameter change dropped after explicit center set")
		}
		o.mu.Unlock()
	}
	o.bus.CenterChanged.Publish(u.Point)
}

// scheduleLocked replaces any pending debounce timer with a new one that
// will evaluate d. An explicit request keeps the slot explicit until it
// fires. Callers hold o.mu.
func (o *Orchestrator) scheduleLocked(d model.RequestDetail, explicit bool) {
	if o.closed {
		return
	}
	o.pending = d
	o.pendingExplicit = explicit || (o.timer != nil && o.pendingExplicit)
	o.timerSeq++
	seq := o.timerSeq
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = o.clock.AfterFunc(o.opts.Debounce, func() { o.fire(seq) })
}

// fire runs when the debounce window closes. It applies the rate limit and,
// if the attempt is accepted, supersedes the previous one.
func (o *Orchestrator) fire(seq uint64) {
	o.mu.Lock()
	if o.closed || seq != o.timerSeq {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.pendingExplicit = false

	now := o.clock.Now()
	if o.started && now.Sub(o.lastStart) < o.opts.MinInterval {
		since := now.Sub(o.lastStart)
		detail := o.pending.WithDefaults()
		o.mu.Unlock()
		zap.L().Debug("isochrone: attempt dropped by rate limit", zap.Duration("since_last", since))
		o.bus.GenerationDropped.Publish(events.GenerationDropped{SinceLastMs: since.Milliseconds(), Detail: detail})
		return
	}
	o.started = true
	o.lastStart = now

	if o.cancel != nil {
		o.cancel()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.cancel = cancel
	o.epoch++
	epoch := o.epoch
	detail := o.pending.WithDefaults()
	o.wg.Add(1)
	o.mu.Unlock()

	o.bus.GenerationStarted.Publish(events.GenerationStarted{Epoch: epoch, Detail: detail})

	go func() {
		defer o.wg.Done()
		o.generate(ctx, epoch, detail)
	}()
}

func (o *Orchestrator) isCurrent(epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && epoch == o.epoch
}

func (o *Orchestrator) generate(ctx context.Context, epoch uint64, detail model.RequestDetail) {
	log := zap.L().With(zap.Uint64("epoch", epoch))

	center, err := o.resolveCenter(ctx, detail)
	if err != nil {
		o.fail(ctx, epoch, err)
		return
	}

	req := ors.NewIsochroneRequest(center.Point, detail)
	log.Debug("isochrone: requesting",
		zap.String("center_source", string(center.Source)),
		zap.Stringer("center", center.Point),
		zap.Int("range", req.Range),
		zap.Int("interval", req.Interval),
		zap.String("profile", string(req.Profile)),
		zap.String("range_type", string(req.RangeType)),
	)

	fc, err := o.api.Isochrones(ctx, req)
	if err != nil {
		o.fail(ctx, epoch, err)
		return
	}

	o.renderMu.Lock()
	if !o.isCurrent(epoch) {
		o.renderMu.Unlock()
		log.Debug("isochrone: discarding superseded result")
		return
	}
	n := o.renderer.Render(fc)
	o.renderMu.Unlock()

	o.mu.Lock()
	if epoch == o.epoch {
		o.markerRecentlySet = false
	}
	o.mu.Unlock()

	o.bus.GenerationFinished.Publish(events.GenerationFinished{Epoch: epoch, Center: center, Features: n})
	log.Info("isochrone: rendered", zap.Int("features", n), zap.String("center_source", string(center.Source)))

	o.resolveLabel(ctx, epoch, center.Point)
}

// resolveLabel reverse-geocodes the center to fill the address field.
// Failures are not surfaced.
func (o *Orchestrator) resolveLabel(ctx context.Context, epoch uint64, p model.LatLng) {
	place, err := o.api.ReverseGeocode(ctx, p)
	if err != nil {
		zap.L().Debug("isochrone: reverse geocode failed", zap.Uint64("epoch", epoch), zap.Error(err))
		return
	}
	if place == nil || place.Label == "" || !o.isCurrent(epoch) {
		return
	}
	o.bus.AddressResolved.Publish(place.Label)
}

// fail reports a terminal failure of the given attempt. Cancellations and
// failures of superseded attempts are dropped silently.
func (o *Orchestrator) fail(ctx context.Context, epoch uint64, err error) {
	if resilience.IsCanceled(err) || ctx.Err() != nil {
		zap.L().Debug("isochrone: attempt canceled", zap.Uint64("epoch", epoch))
		return
	}

	o.renderMu.Lock()
	if !o.isCurrent(epoch) {
		o.renderMu.Unlock()
		return
	}
	o.renderer.Clear()
	o.renderMu.Unlock()

	msg := Message(err)
	zap.L().Warn("isochrone: generation failed",
		zap.Uint64("epoch", epoch),
		zap.String("message", msg),
		zap.Error(err),
	)
	o.bus.Notify(events.LevelError, msg)
}
