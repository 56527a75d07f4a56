package server

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/resilience"
)

// dispatch applies one inbound message. A bad message is reported to the
// client and never ends the session.
func (s *Session) dispatch(data []byte) {
	if err := s.handle(data); err != nil {
		s.log.Debug("server: rejected inbound message", zap.Error(err))
		s.bus.Notify(events.LevelWarning, err.Error())
	}
}

func decode[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, eris.Errorf("%s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, eris.Wrapf(err, "%s: invalid payload", env.Type)
	}
	return v, nil
}

func decodeValue(env Envelope) (float64, error) {
	p, err := decode[valuePayload](env)
	if err != nil {
		return 0, err
	}
	if p.Value == nil {
		return 0, eris.Errorf("%s: value is required", env.Type)
	}
	return *p.Value, nil
}

func (s *Session) handle(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return eris.Wrap(err, "invalid message")
	}

	switch env.Type {
	case MsgSetRange:
		v, err := decodeValue(env)
		if err != nil {
			return err
		}
		s.panel.SetRange(v)

	case MsgSetInterval:
		v, err := decodeValue(env)
		if err != nil {
			return err
		}
		s.panel.SetInterval(v)

	case MsgSetProfile:
		p, err := decode[profilePayload](env)
		if err != nil {
			return err
		}
		profile, err := model.ParseProfile(p.Profile)
		if err != nil {
			return err
		}
		s.panel.SetProfile(profile)
		s.view.SetRouteProfile(profile)

	case MsgSetRangeType:
		p, err := decode[rangeTypePayload](env)
		if err != nil {
			return err
		}
		rt, err := model.ParseRangeType(p.RangeType)
		if err != nil {
			return err
		}
		s.panel.SetRangeType(rt)

	case MsgSetAddress:
		p, err := decode[addressPayload](env)
		if err != nil {
			return err
		}
		s.panel.SetAddress(p.Text)

	case MsgGenerate:
		s.panel.Generate()

	case MsgSelectPoint:
		p, err := decode[model.LatLng](env)
		if err != nil {
			return err
		}
		return s.view.SelectPoint(p)

	case MsgViewport:
		p, err := decode[viewportPayload](env)
		if err != nil {
			return err
		}
		return s.view.SetViewport(p.Center, p.Zoom)

	case MsgPlaceMarker:
		p, err := decode[markerPayload](env)
		if err != nil {
			return err
		}
		kind, err := model.ParseMarkerKind(p.Kind)
		if err != nil {
			return err
		}
		if !p.Point.Valid() {
			return eris.Errorf("%s: invalid point %s", env.Type, p.Point)
		}
		s.goTask(func(ctx context.Context) {
			if _, err := s.view.PlaceMarker(ctx, kind, p.Point); err != nil && !resilience.IsCanceled(err) {
				s.bus.Notify(events.LevelError, err.Error())
			}
		})

	case MsgPlaceGeocodedMarker:
		p, err := decode[markerPayload](env)
		if err != nil {
			return err
		}
		_, err = s.view.PlaceGeocodedMarker(model.MarkerKind(p.Kind), p.Point, p.Label)
		return err

	case MsgHideMarker:
		p, err := decode[markerPayload](env)
		if err != nil {
			return err
		}
		kind, err := model.ParseMarkerKind(p.Kind)
		if err != nil {
			return err
		}
		s.view.HideMarker(kind)

	default:
		return eris.Errorf("unknown message type %q", env.Type)
	}
	return nil
}
