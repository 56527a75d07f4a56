package isochrone

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/orsmap/internal/config"
	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/panel"
	"github.com/sells-group/orsmap/internal/resilience"
	"github.com/sells-group/orsmap/pkg/ors"
	"github.com/sells-group/orsmap/pkg/ors/mocks"
)

var (
	lublin   = model.LatLng{Lat: 51.236525, Lon: 22.4998601}
	plac     = model.LatLng{Lat: 51.2483, Lon: 22.5609}
	clicked  = model.LatLng{Lat: 51.2, Lon: 22.6}
	viewport = model.LatLng{Lat: 51.1, Lon: 22.4}
)

func detail(rng int) model.RequestDetail {
	return model.RequestDetail{Range: rng, Interval: rng / 5, Profile: model.ProfileDriving, RangeType: model.RangeDistance}
}

func rings(n int) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for i := 0; i < n; i++ {
		d := 0.01 * float64(i+1)
		poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
			{22.5 - d, 51.2 - d}, {22.5 + d, 51.2 - d}, {22.5 + d, 51.2 + d}, {22.5 - d, 51.2 + d}, {22.5 - d, 51.2 - d},
		}})
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: poly})
	}
	return fc
}

type fakeCenters struct {
	mu       sync.Mutex
	marker   *model.LatLng
	selected *model.LatLng
	viewport *model.LatLng
	recorded []model.LatLng
}

func get(p *model.LatLng) (model.LatLng, bool) {
	if p == nil {
		return model.LatLng{}, false
	}
	return *p, true
}

func (f *fakeCenters) CenterMarker() (model.LatLng, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return get(f.marker)
}

func (f *fakeCenters) LastSelected() (model.LatLng, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return get(f.selected)
}

func (f *fakeCenters) ViewportCenter() (model.LatLng, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return get(f.viewport)
}

func (f *fakeCenters) SetLastSelected(p model.LatLng) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = &p
	f.recorded = append(f.recorded, p)
}

type fakeRenderer struct {
	mu      sync.Mutex
	renders []*geojson.FeatureCollection
	clears  int
}

func (f *fakeRenderer) Render(fc *geojson.FeatureCollection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, fc)
	return len(fc.Features)
}

func (f *fakeRenderer) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

func (f *fakeRenderer) counts() (renders []*geojson.FeatureCollection, clears int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*geojson.FeatureCollection(nil), f.renders...), f.clears
}

type result struct {
	fc  *geojson.FeatureCollection
	err error
}

// isoCall is one blocked Isochrones call. The test decides when and how it
// returns, regardless of the call's context.
type isoCall struct {
	ctx   context.Context
	req   ors.IsochroneRequest
	reply chan result
}

type fakeAPI struct {
	calls chan *isoCall
	done  chan struct{}

	mu       sync.Mutex
	geocoded []string
	geocode  func(ctx context.Context, text string) ([]model.Place, error)
	reverse  func(ctx context.Context, p model.LatLng) (*model.Place, error)
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	return &fakeAPI{calls: make(chan *isoCall, 8), done: make(chan struct{})}
}

func (f *fakeAPI) Isochrones(ctx context.Context, req ors.IsochroneRequest) (*geojson.FeatureCollection, error) {
	c := &isoCall{ctx: ctx, req: req, reply: make(chan result, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.fc, r.err
	case <-f.done:
		return nil, context.Canceled
	}
}

func (f *fakeAPI) Geocode(ctx context.Context, text string) ([]model.Place, error) {
	f.mu.Lock()
	f.geocoded = append(f.geocoded, text)
	fn := f.geocode
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, text)
}

func (f *fakeAPI) ReverseGeocode(ctx context.Context, p model.LatLng) (*model.Place, error) {
	f.mu.Lock()
	fn := f.reverse
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, p)
}

func (f *fakeAPI) geocodedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.geocoded...)
}

type harness struct {
	bus      *events.Bus
	clock    *clock.Mock
	centers  *fakeCenters
	renderer *fakeRenderer
	orch     *Orchestrator

	started    chan events.GenerationStarted
	finished   chan events.GenerationFinished
	dropped    chan events.GenerationDropped
	notes      chan events.Notification
	resolved   chan string
	changed    chan model.LatLng
	candidates chan events.AddressCandidates
}

func sink[T any](topic *events.Topic[T]) chan T {
	ch := make(chan T, 16)
	topic.Subscribe(func(v T) {
		select {
		case ch <- v:
		default:
		}
	})
	return ch
}

func newHarness(t *testing.T, api API, centers *fakeCenters) *harness {
	t.Helper()
	bus := events.New()
	h := &harness{
		bus:        bus,
		clock:      clock.NewMock(),
		centers:    centers,
		renderer:   &fakeRenderer{},
		started:    sink(&bus.GenerationStarted),
		finished:   sink(&bus.GenerationFinished),
		dropped:    sink(&bus.GenerationDropped),
		notes:      sink(&bus.Notification),
		resolved:   sink(&bus.AddressResolved),
		changed:    sink(&bus.CenterChanged),
		candidates: sink(&bus.AddressCandidates),
	}
	opts := DefaultOptions()
	opts.Clock = h.clock
	var src CenterSource
	if centers != nil {
		src = centers
	}
	h.orch = New(bus, api, src, h.renderer, opts)
	t.Cleanup(h.orch.Close)
	if f, ok := api.(*fakeAPI); ok {
		t.Cleanup(func() { close(f.done) })
	}
	return h
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for value")
	}
	var zero T
	return zero
}

func none[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		require.FailNow(t, "unexpected value", "%v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) change(d model.RequestDetail) { h.bus.ParametersChanged.Publish(d) }

func TestDebounce_CoalescesTriggers(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	h := newHarness(t, api, &fakeCenters{viewport: &viewport})

	h.change(detail(1000))
	h.clock.Add(300 * time.Millisecond)
	h.change(detail(2000))
	h.clock.Add(300 * time.Millisecond)
	h.change(detail(3000))
	h.clock.Add(599 * time.Millisecond)
	none(t, h.started)

	h.clock.Add(time.Millisecond)
	started := recv(t, h.started)
	assert.Equal(t, uint64(1), started.Epoch)
	assert.Equal(t, 3000, started.Detail.Range)

	call := recv(t, api.calls)
	assert.Equal(t, 3000, call.req.Range)
	assert.Equal(t, viewport, call.req.Center)
	none(t, api.calls)
}

func TestRateLimit_DropsEarlyFire(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	h := newHarness(t, api, &fakeCenters{viewport: &viewport})

	h.change(detail(1000))
	h.clock.Add(600 * time.Millisecond)
	recv(t, h.started)
	recv(t, api.calls).reply <- result{fc: rings(1)}
	recv(t, h.finished)

	// 600ms after the last start: dropped, not queued.
	h.change(detail(2000))
	h.clock.Add(600 * time.Millisecond)
	none(t, h.started)
	none(t, api.calls)
	assert.Equal(t, uint64(1), h.orch.Epoch())
	dropped := recv(t, h.dropped)
	assert.Equal(t, int64(600), dropped.SinceLastMs)
	assert.Equal(t, 2000, dropped.Detail.Range)

	h.clock.Add(time.Second)
	none(t, h.started)

	h.change(detail(3000))
	h.clock.Add(600 * time.Millisecond)
	started := recv(t, h.started)
	assert.Equal(t, uint64(2), started.Epoch)
	assert.Equal(t, 3000, recv(t, api.calls).req.Range)
}

func TestSuppression_AfterExplicitCenter(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	centers := &fakeCenters{viewport: &viewport}
	h := newHarness(t, api, centers)

	centers.mu.Lock()
	centers.marker = &lublin
	centers.mu.Unlock()
	h.bus.CenterUpdated.Publish(events.CenterUpdate{Point: lublin, Source: model.CenterFromMarker, Visible: true})
	assert.Equal(t, lublin, recv(t, h.changed))
	assert.True(t, h.orch.Suppressed())

	h.change(detail(1000))
	h.clock.Add(time.Second)
	none(t, h.started)

	h.bus.GenerateRequested.Publish(detail(2000))
	h.clock.Add(600 * time.Millisecond)
	recv(t, h.started)
	call := recv(t, api.calls)
	assert.Equal(t, lublin, call.req.Center)
	call.reply <- result{fc: rings(2)}

	finished := recv(t, h.finished)
	assert.Equal(t, model.CenterFromMarker, finished.Center.Source)
	assert.Equal(t, 2, finished.Features)
	assert.False(t, h.orch.Suppressed(), "cleared by the successful render")

	h.clock.Add(time.Second)
	h.change(detail(3000))
	h.clock.Add(600 * time.Millisecond)
	recv(t, h.started)
	assert.Equal(t, 3000, recv(t, api.calls).req.Range)
}

func TestSuppression_CancelsPendingParameterChange(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	centers := &fakeCenters{viewport: &viewport}
	h := newHarness(t, api, centers)

	h.change(detail(5000))
	h.clock.Add(100 * time.Millisecond)

	centers.mu.Lock()
	centers.marker = &lublin
	centers.mu.Unlock()
	h.bus.CenterUpdated.Publish(events.CenterUpdate{Point: lublin, Source: model.CenterFromMarker, Visible: true})

	h.clock.Add(600 * time.Millisecond)
	none(t, h.started)
	none(t, api.calls)
	none(t, h.dropped)
	assert.Equal(t, uint64(0), h.orch.Epoch())
	assert.True(t, h.orch.Suppressed())
}

func TestSuppression_KeepsPendingGenerate(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	centers := &fakeCenters{viewport: &viewport}
	h := newHarness(t, api, centers)

	h.bus.GenerateRequested.Publish(detail(5000))
	h.clock.Add(100 * time.Millisecond)
	h.change(detail(6000))
	h.clock.Add(100 * time.Millisecond)

	centers.mu.Lock()
	centers.marker = &lublin
	centers.mu.Unlock()
	h.bus.CenterUpdated.Publish(events.CenterUpdate{Point: lublin, Source: model.CenterFromMarker, Visible: true})

	h.clock.Add(600 * time.Millisecond)
	recv(t, h.started)
	call := recv(t, api.calls)
	assert.Equal(t, lublin, call.req.Center)
	assert.Equal(t, 6000, call.req.Range, "the slot keeps the latest detail")
}

func TestCenterUpdated_HiddenOrSelectionDoesNotSuppress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakeAPI(t), &fakeCenters{})

	h.bus.CenterUpdated.Publish(events.CenterUpdate{Point: lublin, Source: model.CenterFromMarker, Visible: false})
	h.bus.CenterUpdated.Publish(events.CenterUpdate{Point: clicked, Source: model.CenterFromSelection, Visible: true})

	assert.Equal(t, lublin, recv(t, h.changed))
	assert.Equal(t, clicked, recv(t, h.changed))
	assert.False(t, h.orch.Suppressed())
}

// startTwo starts attempt A, then supersedes it with attempt B.
func startTwo(t *testing.T, h *harness, api *fakeAPI) (a, b *isoCall) {
	t.Helper()
	h.change(detail(1000))
	h.clock.Add(600 * time.Millisecond)
	recv(t, h.started)
	a = recv(t, api.calls)

	h.clock.Add(500 * time.Millisecond)
	h.change(detail(2000))
	h.clock.Add(600 * time.Millisecond)
	assert.Equal(t, uint64(2), recv(t, h.started).Epoch)
	b = recv(t, api.calls)

	require.ErrorIs(t, a.ctx.Err(), context.Canceled, "starting B cancels A")
	require.NoError(t, b.ctx.Err())
	return a, b
}

func TestSupersededResult_NeverRenders(t *testing.T) {
	t.Parallel()

	fcA, fcB := rings(1), rings(3)

	t.Run("stale result arrives first", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(t)
		h := newHarness(t, api, &fakeCenters{viewport: &viewport})
		a, b := startTwo(t, h, api)

		a.reply <- result{fc: fcA}
		b.reply <- result{fc: fcB}
		assert.Equal(t, uint64(2), recv(t, h.finished).Epoch)
		h.orch.Close()

		renders, clears := h.renderer.counts()
		require.Len(t, renders, 1)
		assert.Same(t, fcB, renders[0])
		assert.Zero(t, clears)
	})

	t.Run("stale result arrives last", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(t)
		h := newHarness(t, api, &fakeCenters{viewport: &viewport})
		a, b := startTwo(t, h, api)

		b.reply <- result{fc: fcB}
		recv(t, h.finished)
		a.reply <- result{fc: fcA}
		h.orch.Close()

		renders, _ := h.renderer.counts()
		require.Len(t, renders, 1)
		assert.Same(t, fcB, renders[0])
		none(t, h.finished)
	})

	t.Run("stale failure is silent", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(t)
		h := newHarness(t, api, &fakeCenters{viewport: &viewport})
		a, b := startTwo(t, h, api)

		b.reply <- result{fc: fcB}
		recv(t, h.finished)
		a.reply <- result{err: &ors.APIError{Op: "isochrones", StatusCode: 500, Message: "boom"}}
		h.orch.Close()

		_, clears := h.renderer.counts()
		assert.Zero(t, clears)
		none(t, h.notes)
	})
}

func TestAddressNotFound_ClearsAndNotifies(t *testing.T) {
	t.Parallel()

	api := mocks.NewMockClient(t)
	api.On("Geocode", mock.Anything, "Lublin, Plac Litewski").Return([]model.Place{}, nil).Once()

	h := newHarness(t, api, &fakeCenters{viewport: &viewport})
	d := detail(15000)
	d.Address = "Lublin, Plac Litewski"
	h.bus.GenerateRequested.Publish(d)
	h.clock.Add(600 * time.Millisecond)

	note := recv(t, h.notes)
	assert.Equal(t, events.LevelError, note.Level)
	assert.Equal(t, "address not found: Lublin, Plac Litewski", note.Message)

	_, clears := h.renderer.counts()
	assert.Equal(t, 1, clears)
	api.AssertNotCalled(t, "Isochrones", mock.Anything, mock.Anything)
}

func TestAddressGeocodeError_IsAddressNotFound(t *testing.T) {
	t.Parallel()

	api := mocks.NewMockClient(t)
	api.On("Geocode", mock.Anything, "Nowhere").Return(nil, eris.New("ors: geocode: status 502")).Once()

	h := newHarness(t, api, nil)
	d := detail(15000)
	d.Address = "Nowhere"
	h.bus.GenerateRequested.Publish(d)
	h.clock.Add(600 * time.Millisecond)

	assert.Equal(t, "address not found: Nowhere", recv(t, h.notes).Message)
}

func TestNoFocalPoint(t *testing.T) {
	t.Parallel()

	api := mocks.NewMockClient(t)
	h := newHarness(t, api, &fakeCenters{})
	h.bus.GenerateRequested.Publish(detail(5000))
	h.clock.Add(600 * time.Millisecond)

	note := recv(t, h.notes)
	assert.Equal(t, msgNoFocalPoint, note.Message)
	_, clears := h.renderer.counts()
	assert.Equal(t, 1, clears)
}

func TestCenterPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		centers    *fakeCenters
		address    string
		geocoded   *model.Place
		want       model.LatLng
		wantSource model.CenterSource
	}{
		{
			name:       "marker beats address",
			centers:    &fakeCenters{marker: &lublin, selected: &clicked, viewport: &viewport},
			address:    "Plac Litewski",
			want:       lublin,
			wantSource: model.CenterFromMarker,
		},
		{
			name:       "address beats selection",
			centers:    &fakeCenters{selected: &clicked, viewport: &viewport},
			address:    "Plac Litewski",
			geocoded:   &model.Place{Label: "Plac Litewski, Lublin", Point: plac},
			want:       plac,
			wantSource: model.CenterFromAddress,
		},
		{
			name:       "selection beats viewport",
			centers:    &fakeCenters{selected: &clicked, viewport: &viewport},
			want:       clicked,
			wantSource: model.CenterFromSelection,
		},
		{
			name:       "viewport last",
			centers:    &fakeCenters{viewport: &viewport},
			want:       viewport,
			wantSource: model.CenterFromViewport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := mocks.NewMockClient(t)
			if tt.geocoded != nil {
				api.On("Geocode", mock.Anything, tt.address).Return([]model.Place{*tt.geocoded}, nil).Once()
			}
			api.On("Isochrones", mock.Anything, mock.MatchedBy(func(r ors.IsochroneRequest) bool {
				return r.Center == tt.want
			})).Return(rings(2), nil).Once()
			api.On("ReverseGeocode", mock.Anything, tt.want).Return(nil, nil).Maybe()

			h := newHarness(t, api, tt.centers)
			d := detail(10000)
			d.Address = tt.address
			h.bus.GenerateRequested.Publish(d)
			h.clock.Add(600 * time.Millisecond)

			finished := recv(t, h.finished)
			assert.Equal(t, tt.wantSource, finished.Center.Source)
			assert.Equal(t, tt.want, finished.Center.Point)
			if tt.geocoded == nil {
				api.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestFailureClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		want   string
		silent bool
	}{
		{
			name: "unroutable by code",
			err:  &ors.APIError{Op: "isochrones", StatusCode: 400, Code: 3002, Message: "Unable to build an isochrone map."},
			want: msgNoRoute,
		},
		{
			name: "unroutable by phrase",
			err:  eris.Wrap(&ors.APIError{Op: "isochrones", StatusCode: 404, Message: "Could not find routable point within a radius of 350.0 meters"}, "wrapped"),
			want: msgNoRoute,
		},
		{
			name: "raw remote message",
			err:  &ors.APIError{Op: "isochrones", StatusCode: 500, Message: "Internal Server Error"},
			want: "Internal Server Error",
		},
		{
			name: "transport error",
			err:  eris.New("ors: isochrones: connection refused"),
			want: "ors: isochrones: connection refused",
		},
		{
			name:   "cancellation swallowed",
			err:    eris.Wrap(context.Canceled, "ors: isochrones"),
			silent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newFakeAPI(t)
			h := newHarness(t, api, &fakeCenters{viewport: &viewport})
			h.bus.GenerateRequested.Publish(detail(5000))
			h.clock.Add(600 * time.Millisecond)
			recv(t, api.calls).reply <- result{err: tt.err}

			if tt.silent {
				h.orch.Close()
				none(t, h.notes)
				_, clears := h.renderer.counts()
				assert.Zero(t, clears)
				return
			}

			note := recv(t, h.notes)
			assert.Equal(t, events.LevelError, note.Level)
			assert.Equal(t, tt.want, note.Message)
			_, clears := h.renderer.counts()
			assert.Equal(t, 1, clears, "terminal failure clears the layer before notifying")
		})
	}
}

func TestSuccess_ReverseGeocodesCenter(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.reverse = func(_ context.Context, p model.LatLng) (*model.Place, error) {
		assert.Equal(t, clicked, p)
		return &model.Place{Label: "Krakowskie Przedmieście, Lublin", Point: p}, nil
	}
	h := newHarness(t, api, &fakeCenters{selected: &clicked})

	h.bus.GenerateRequested.Publish(detail(5000))
	h.clock.Add(600 * time.Millisecond)
	recv(t, api.calls).reply <- result{fc: rings(3)}

	assert.Equal(t, 3, recv(t, h.finished).Features)
	assert.Equal(t, "Krakowskie Przedmieście, Lublin", recv(t, h.resolved))
}

func TestSuccess_ReverseGeocodeFailureIsQuiet(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.reverse = func(context.Context, model.LatLng) (*model.Place, error) {
		return nil, eris.New("ors: reverse: status 500")
	}
	h := newHarness(t, api, &fakeCenters{selected: &clicked})

	h.bus.GenerateRequested.Publish(detail(5000))
	h.clock.Add(600 * time.Millisecond)
	recv(t, api.calls).reply <- result{fc: rings(1)}
	recv(t, h.finished)
	h.orch.Close()

	none(t, h.resolved)
	none(t, h.notes)
}

func TestAddressIntent_DebouncedLookup(t *testing.T) {
	t.Parallel()

	places := make([]model.Place, 7)
	for i := range places {
		places[i] = model.Place{Label: "candidate", Point: model.LatLng{Lat: 51 + float64(i)/10, Lon: 22.5}}
	}
	api := newFakeAPI(t)
	api.geocode = func(context.Context, string) ([]model.Place, error) { return places, nil }
	centers := &fakeCenters{}
	h := newHarness(t, api, centers)

	h.bus.AddressIntent.Publish("Lub")
	h.clock.Add(300 * time.Millisecond)
	h.bus.AddressIntent.Publish("Lublin")
	h.clock.Add(599 * time.Millisecond)
	none(t, h.candidates)

	h.clock.Add(time.Millisecond)
	got := recv(t, h.candidates)
	assert.Equal(t, "Lublin", got.Query)
	assert.Len(t, got.Places, 5)
	assert.Equal(t, places[0].Point, recv(t, h.changed))

	assert.Equal(t, []string{"Lublin"}, api.geocodedTexts())
	centers.mu.Lock()
	assert.Equal(t, []model.LatLng{places[0].Point}, centers.recorded)
	centers.mu.Unlock()

	none(t, h.started)
}

func TestAddressIntent_BlankCancelsPending(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	h := newHarness(t, api, &fakeCenters{})

	h.bus.AddressIntent.Publish("Lub")
	h.bus.AddressIntent.Publish("   ")
	h.clock.Add(time.Second)
	h.orch.Close()

	none(t, h.candidates)
	assert.Empty(t, api.geocodedTexts())
}

func TestAddressIntent_FailureIsNotSurfaced(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.geocode = func(context.Context, string) ([]model.Place, error) {
		return nil, eris.New("ors: geocode: status 503")
	}
	h := newHarness(t, api, &fakeCenters{})

	h.bus.AddressIntent.Publish("Lublin")
	h.clock.Add(600 * time.Millisecond)
	h.orch.Close()

	assert.Equal(t, []string{"Lublin"}, api.geocodedTexts())
	none(t, h.candidates)
	none(t, h.notes)
}

func TestClose_StopsTimersAndUnsubscribes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakeAPI(t), &fakeCenters{viewport: &viewport})
	h.change(detail(1000))
	h.orch.Close()
	h.orch.Close()

	h.clock.Add(time.Second)
	none(t, h.started)
	assert.Zero(t, h.bus.ParametersChanged.Len())
	assert.Zero(t, h.bus.CenterUpdated.Len())
}

func TestMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"address", &AddressNotFoundError{Address: "Lublin"}, "address not found: Lublin"},
		{"wrapped address", eris.Wrap(&AddressNotFoundError{Address: "Lublin"}, "ctx"), "address not found: Lublin"},
		{"no focal point", ErrNoFocalPoint, msgNoFocalPoint},
		{"unroutable", &ors.APIError{StatusCode: 404, Message: "Route could not be found"}, msgNoRoute},
		{"api message", &ors.APIError{StatusCode: 403, Message: "Access to this API has been disallowed"}, "Access to this API has been disallowed"},
		{"breaker open", eris.Wrap(resilience.ErrBreakerOpen, "ors: isochrones"), msgUnavailable},
		{"plain", eris.New("isochrone: boom"), "isochrone: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestResolvedLabel_DoesNotPinLaterAttempts(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.reverse = func(_ context.Context, p model.LatLng) (*model.Place, error) {
		return &model.Place{Label: "Old Street 1", Point: p}, nil
	}
	centers := &fakeCenters{selected: &clicked}
	h := newHarness(t, api, centers)
	p := panel.New(h.bus, config.IsochroneConfig{
		MaxDistanceKm:    50,
		MaxTimeMin:       60,
		DefaultRange:     15,
		DefaultInterval:  3,
		DefaultProfile:   "driving-car",
		DefaultRangeType: "distance",
	})
	t.Cleanup(p.Close)

	p.Generate()
	h.clock.Add(600 * time.Millisecond)
	call := recv(t, api.calls)
	assert.Equal(t, clicked, call.req.Center)
	call.reply <- result{fc: rings(1)}
	recv(t, h.finished)
	assert.Equal(t, "Old Street 1", recv(t, h.resolved))
	require.Eventually(t, func() bool { return p.State().Address == "Old Street 1" }, time.Second, 5*time.Millisecond)

	centers.SetLastSelected(plac)
	h.bus.CenterUpdated.Publish(events.CenterUpdate{Point: plac, Source: model.CenterFromSelection, Visible: true})
	assert.True(t, p.State().Dirty)

	h.clock.Add(time.Second)
	d := p.Generate()
	assert.Empty(t, d.Address)
	h.clock.Add(600 * time.Millisecond)
	call = recv(t, api.calls)
	assert.Equal(t, plac, call.req.Center, "the new click is the focal point")
	call.reply <- result{fc: rings(1)}
	assert.Equal(t, model.CenterFromSelection, recv(t, h.finished).Center.Source)
	assert.Empty(t, api.geocodedTexts())
}
