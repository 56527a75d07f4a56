package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/orsmap/internal/config"
	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/isochrone"
	"github.com/sells-group/orsmap/internal/mapview"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/panel"
	"github.com/sells-group/orsmap/internal/render"
	"github.com/sells-group/orsmap/internal/resilience"
	"github.com/sells-group/orsmap/pkg/ors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
)

// Session is one connected map. It owns a private bus with its panel,
// orchestrator, render layer and map view.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	log  *zap.Logger

	bus   *events.Bus
	panel *panel.Panel
	view  *mapview.View
	orch  *isochrone.Orchestrator
	layer *render.Layer

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

func newSession(ctx context.Context, conn *websocket.Conn, cfg *config.Config, api ors.Client) *Session {
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	buf := cfg.Server.SendBuffer
	if buf < 1 {
		buf = 64
	}

	s := &Session{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, buf),
		log:    zap.L().With(zap.String("session", id)),
		bus:    events.New(),
		ctx:    ctx,
		cancel: cancel,
	}

	s.layer = render.NewLayer(s)
	s.panel = panel.New(s.bus, cfg.Isochrone)
	s.view = mapview.New(s.bus, api, s, mapview.Options{
		MaxRouteKm: cfg.Route.MaxDistanceKm,
		Center:     model.LatLng{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon},
		Zoom:       float64(cfg.Map.Zoom),
	})
	s.orch = isochrone.New(s.bus, api, s.view, s.layer, isochrone.OptionsFromConfig(cfg.Isochrone))
	s.subscribe()
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// subscribe mirrors bus traffic to the client.
func (s *Session) subscribe() {
	s.bus.PanelState.Subscribe(func(st model.PanelState) { s.enqueue(MsgPanelState, st) })
	s.bus.MarkerChanged.Subscribe(func(m model.Marker) { s.enqueue(MsgMarker, m) })
	s.bus.Notification.Subscribe(func(n events.Notification) { s.enqueue(MsgNotification, n) })
	s.bus.GenerationStarted.Subscribe(func(e events.GenerationStarted) { s.enqueue(MsgGenerationStarted, e) })
	s.bus.GenerationFinished.Subscribe(func(e events.GenerationFinished) { s.enqueue(MsgGenerationFinished, e) })
	s.bus.GenerationDropped.Subscribe(func(e events.GenerationDropped) { s.enqueue(MsgGenerationDropped, e) })
	s.bus.CenterChanged.Subscribe(func(p model.LatLng) { s.enqueue(MsgCenterChanged, p) })
	s.bus.AddressResolved.Subscribe(func(label string) { s.enqueue(MsgAddressResolved, labelPayload{Label: label}) })
	s.bus.AddressCandidates.Subscribe(func(c events.AddressCandidates) { s.enqueue(MsgAddressCandidates, c) })
}

// Run pumps messages until the connection drops or ctx ends, then tears
// the session down.
func (s *Session) Run() error {
	defer s.close()

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		return s.writePump(ctx)
	})

	s.enqueue(MsgSession, sessionPayload{ID: s.id})
	s.enqueue(MsgPanelState, s.panel.State())

	g.Go(func() error {
		defer s.cancel()
		return s.readPump()
	})

	err := g.Wait()
	if err != nil && !resilience.IsCanceled(err) {
		return eris.Wrapf(err, "server: session %s", s.id)
	}
	return nil
}

func (s *Session) close() {
	s.cancel()
	s.orch.Close()
	s.view.Close()
	s.panel.Close()
	s.tasks.Wait()
	_ = s.conn.Close()
	s.log.Info("server: session closed")
}

func (s *Session) readPump() error {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return eris.Wrap(err, "read")
			}
			return nil
		}
		s.dispatch(data)
	}
}

func (s *Session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			// Unblocks the read pump.
			_ = s.conn.Close()
			return nil
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.cancel()
				_ = s.conn.Close()
				return eris.Wrap(err, "write")
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				_ = s.conn.Close()
				return eris.Wrap(err, "ping")
			}
		}
	}
}

// enqueue frames payload and hands it to the write pump. It blocks while the
// buffer is full and gives up once the session ends.
func (s *Session) enqueue(typ string, payload any) {
	env := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.log.Error("server: encode outbound message", zap.String("type", typ), zap.Error(err))
			return
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.log.Error("server: encode envelope", zap.String("type", typ), zap.Error(err))
		return
	}

	select {
	case s.send <- data:
	case <-s.ctx.Done():
	}
}

// goTask runs fn outside the read pump so slow lookups do not stall reads.
func (s *Session) goTask(fn func(ctx context.Context)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn(s.ctx)
	}()
}

// ReplaceIsochrones implements render.Surface.
func (s *Session) ReplaceIsochrones(shapes []render.Shape, bounds *geom.Bounds) {
	p := isochronesPayload{Shapes: shapes}
	if bounds != nil && !bounds.IsEmpty() {
		p.BBox = []float64{bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)}
	}
	s.enqueue(MsgIsochrones, p)
}

// ClearIsochrones implements render.Surface.
func (s *Session) ClearIsochrones() { s.enqueue(MsgIsochronesCleared, nil) }

// ShowRoute implements mapview.RouteSurface.
func (s *Session) ShowRoute(fc *geojson.FeatureCollection) {
	s.enqueue(MsgRoute, routePayload{Route: fc, Style: render.RouteStyle})
}

// ClearRoute implements mapview.RouteSurface.
func (s *Session) ClearRoute() { s.enqueue(MsgRouteCleared, nil) }
