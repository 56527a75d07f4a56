// Package panel holds the user-editable isochrone parameters. It clamps and
// converts values, publishes parameter and generate requests on the bus,
// and tracks whether the rendered result is stale.
package panel

import (
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/config"
	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
)

// MinRange is the smallest range or interval in UI units, for both types.
const MinRange = 1.0

// switchFactor rescales magnitudes on a range-type switch so the slider
// lands somewhere sensible: km*5 -> minutes, minutes/5 -> km.
const switchFactor = 5.0

// Panel is the parameter state machine. It never calls the orchestrator;
// all coordination goes through the bus.
type Panel struct {
	bus         *events.Bus
	maxDistance float64
	maxTime     float64

	mu        sync.Mutex
	rangeType model.RangeType
	rng       float64
	interval  float64
	profile   model.Profile
	address   string
	dirty     bool

	// addressTyped is set while address came from the user rather than a
	// reverse geocode. Only typed text takes part in center resolution.
	addressTyped bool
	// restoreDirty holds the stale flag cleared by Generate until the
	// attempt either starts or is dropped.
	restoreDirty bool

	unsubscribe []func()
}

// New builds a panel from configuration and subscribes it to the
// generation and center signals on bus.
func New(bus *events.Bus, cfg config.IsochroneConfig) *Panel {
	profile, err := model.ParseProfile(cfg.DefaultProfile)
	if err != nil {
		zap.L().Warn("panel: invalid default profile, using driving", zap.Error(err))
		profile = model.ProfileDriving
	}
	rt, err := model.ParseRangeType(cfg.DefaultRangeType)
	if err != nil {
		zap.L().Warn("panel: invalid default range type, using distance", zap.Error(err))
		rt = model.RangeDistance
	}

	p := &Panel{
		bus:         bus,
		maxDistance: math.Max(cfg.MaxDistanceKm, MinRange),
		maxTime:     math.Max(cfg.MaxTimeMin, MinRange),
		rangeType:   rt,
		profile:     profile,
	}
	p.rng = clamp(cfg.DefaultRange, MinRange, p.typeMax(rt))
	p.interval = clamp(cfg.DefaultInterval, MinRange, p.rng)

	p.unsubscribe = []func(){
		bus.GenerationStarted.Subscribe(p.onGenerationStarted),
		bus.GenerationFinished.Subscribe(func(events.GenerationFinished) { p.setDirty(false) }),
		bus.GenerationDropped.Subscribe(p.onGenerationDropped),
		bus.CenterUpdated.Subscribe(p.onCenterUpdated),
		bus.CenterChanged.Subscribe(func(model.LatLng) { p.setDirty(true) }),
		bus.AddressResolved.Subscribe(p.onAddressResolved),
	}
	return p
}

// Close detaches the panel from the bus.
func (p *Panel) Close() {
	for _, u := range p.unsubscribe {
		u()
	}
}

// State returns a snapshot of the panel.
func (p *Panel) State() model.PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// SetRange clamps v to the current type's bounds and pulls the interval
// down if it now exceeds the range.
func (p *Panel) SetRange(v float64) {
	p.mu.Lock()
	p.rng = clamp(v, MinRange, p.typeMax(p.rangeType))
	if p.interval > p.rng {
		p.interval = p.rng
	}
	p.dirty = true
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.publishChange(state)
}

// SetInterval clamps v to [MinRange, range].
func (p *Panel) SetInterval(v float64) {
	p.mu.Lock()
	p.interval = clamp(v, MinRange, p.rng)
	p.dirty = true
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.publishChange(state)
}

// SetRangeType switches between distance and time. The magnitudes are
// rescaled and re-clamped; they are kept valid, not unit-equivalent.
func (p *Panel) SetRangeType(t model.RangeType) {
	t = t.OrDefault()

	p.mu.Lock()
	if t == p.rangeType {
		p.mu.Unlock()
		return
	}
	factor := switchFactor
	if t == model.RangeDistance {
		factor = 1 / switchFactor
	}
	p.rangeType = t
	p.rng = clamp(math.Round(p.rng*factor), MinRange, p.typeMax(t))
	p.interval = clamp(math.Round(p.interval*factor), MinRange, p.rng)
	p.dirty = true
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.publishChange(state)
}

// SetProfile changes the travel mode.
func (p *Panel) SetProfile(profile model.Profile) {
	p.mu.Lock()
	p.profile = profile.OrDefault()
	p.dirty = true
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.publishChange(state)
}

// SetAddress stores the typed text and announces it as an address intent.
// Resolving the text is left to the subscriber.
func (p *Panel) SetAddress(text string) {
	p.mu.Lock()
	p.address = text
	p.addressTyped = strings.TrimSpace(text) != ""
	p.dirty = true
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.bus.PanelState.Publish(state)
	p.bus.AddressIntent.Publish(text)
}

// Generate requests an isochrone for the current parameters and clears the
// stale flag right away. The flag comes back if the attempt is dropped by
// the rate limit.
func (p *Panel) Generate() model.RequestDetail {
	p.mu.Lock()
	p.restoreDirty = p.restoreDirty || p.dirty
	p.dirty = false
	state := p.snapshotLocked()
	p.mu.Unlock()

	detail := state.Detail()
	p.bus.PanelState.Publish(state)
	p.bus.GenerateRequested.Publish(detail)
	return detail
}

func (p *Panel) publishChange(state model.PanelState) {
	p.bus.PanelState.Publish(state)
	p.bus.ParametersChanged.Publish(state.Detail())
}

func (p *Panel) setDirty(dirty bool) {
	p.mu.Lock()
	if p.dirty == dirty {
		p.mu.Unlock()
		return
	}
	p.dirty = dirty
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.bus.PanelState.Publish(state)
}

func (p *Panel) onGenerationStarted(events.GenerationStarted) {
	p.mu.Lock()
	p.restoreDirty = false
	p.mu.Unlock()
	p.setDirty(false)
}

func (p *Panel) onGenerationDropped(events.GenerationDropped) {
	p.mu.Lock()
	restore := p.restoreDirty
	p.restoreDirty = false
	p.mu.Unlock()
	if restore {
		p.setDirty(true)
	}
}

// onCenterUpdated drops a typed address once the user picks a point on the
// map, so the new point is what the next attempt centers on.
func (p *Panel) onCenterUpdated(u events.CenterUpdate) {
	if !u.Visible {
		return
	}
	p.mu.Lock()
	if !p.addressTyped {
		p.mu.Unlock()
		return
	}
	p.addressTyped = false
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.bus.PanelState.Publish(state)
}

// onAddressResolved mirrors a reverse-geocoded label into the text field
// without publishing an address intent.
func (p *Panel) onAddressResolved(label string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	p.mu.Lock()
	p.address = label
	p.addressTyped = false
	state := p.snapshotLocked()
	p.mu.Unlock()

	p.bus.PanelState.Publish(state)
}

func (p *Panel) typeMax(t model.RangeType) float64 {
	if t.OrDefault() == model.RangeTime {
		return p.maxTime
	}
	return p.maxDistance
}

func (p *Panel) snapshotLocked() model.PanelState {
	return model.PanelState{
		RangeType: p.rangeType,
		Range:     p.rng,
		Interval:  p.interval,
		Profile:   p.profile,
		Address:   p.address,
		Typed:     p.addressTyped,
		Dirty:     p.dirty,
		MaxRange:  p.typeMax(p.rangeType),
		Unit:      p.rangeType.Unit(),
	}
}

// clamp bounds v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
