package isochrone

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/resilience"
	"github.com/sells-group/orsmap/pkg/ors"
)

// ErrNoFocalPoint means neither a marker, an address, a selection nor a
// viewport could supply a center.
var ErrNoFocalPoint = eris.New("isochrone: no focal point")

// AddressNotFoundError is returned when the attempt's address could not be
// geocoded.
type AddressNotFoundError struct {
	Address string
	Err     error
}

func (e *AddressNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("isochrone: address not found: %s: %v", e.Address, e.Err)
	}
	return "isochrone: address not found: " + e.Address
}

func (e *AddressNotFoundError) Unwrap() error { return e.Err }

const (
	msgNoFocalPoint = "no focal point: place a center marker, click the map or search for an address"
	msgNoRoute      = "no reachable path from this location; move the center closer to a road"
	msgUnavailable  = "routing service is temporarily unavailable, try again shortly"
)

// Message turns an attempt failure into the text shown to the user.
func Message(err error) string {
	var notFound *AddressNotFoundError
	switch {
	case errors.As(err, &notFound):
		return "address not found: " + notFound.Address
	case errors.Is(err, ErrNoFocalPoint):
		return msgNoFocalPoint
	case ors.IsUnroutable(err):
		return msgNoRoute
	case errors.Is(err, resilience.ErrBreakerOpen):
		return msgUnavailable
	}
	if apiErr, ok := ors.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// resolveCenter picks the attempt's center: marker, then address, then the
// last selected point, then the viewport.
func (o *Orchestrator) resolveCenter(ctx context.Context, detail model.RequestDetail) (model.CenterResolution, error) {
	if o.centers != nil {
		if p, ok := o.centers.CenterMarker(); ok {
			return model.CenterResolution{Point: p, Source: model.CenterFromMarker}, nil
		}
	}

	if detail.HasAddress() {
		places, err := o.api.Geocode(ctx, detail.Address)
		if err != nil {
			if resilience.IsCanceled(err) || ctx.Err() != nil {
				return model.CenterResolution{}, err
			}
			return model.CenterResolution{}, &AddressNotFoundError{Address: detail.Address, Err: err}
		}
		if len(places) == 0 {
			return model.CenterResolution{}, &AddressNotFoundError{Address: detail.Address}
		}
		return model.CenterResolution{Point: places[0].Point, Source: model.CenterFromAddress, Label: places[0].Label}, nil
	}

	if o.centers != nil {
		if p, ok := o.centers.LastSelected(); ok {
			return model.CenterResolution{Point: p, Source: model.CenterFromSelection}, nil
		}
		if p, ok := o.centers.ViewportCenter(); ok {
			return model.CenterResolution{Point: p, Source: model.CenterFromViewport}, nil
		}
	}
	return model.CenterResolution{}, ErrNoFocalPoint
}

func (o *Orchestrator) onAddressIntent(text string) {
	text = strings.TrimSpace(text)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.addressSeq++
	seq := o.addressSeq
	if o.addressTimer != nil {
		o.addressTimer.Stop()
		o.addressTimer = nil
	}
	if text == "" {
		return
	}
	o.addressTimer = o.clock.AfterFunc(o.opts.AddressDebounce, func() { o.fireAddress(seq, text) })
}

func (o *Orchestrator) fireAddress(seq uint64, text string) {
	o.mu.Lock()
	if o.closed || seq != o.addressSeq {
		o.mu.Unlock()
		return
	}
	o.addressTimer = nil
	if o.addressCancel != nil {
		o.addressCancel()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.addressCancel = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.lookupAddress(ctx, seq, text)
	}()
}

// lookupAddress geocodes typed text for autocomplete and moves the last
// selected point to the first hit.
func (o *Orchestrator) lookupAddress(ctx context.Context, seq uint64, text string) {
	places, err := o.api.Geocode(ctx, text)
	if err != nil {
		if !resilience.IsCanceled(err) && ctx.Err() == nil {
			zap.L().Warn("isochrone: address lookup failed", zap.String("address", text), zap.Error(err))
		}
		return
	}

	o.mu.Lock()
	current := !o.closed && seq == o.addressSeq
	o.mu.Unlock()
	if !current {
		return
	}

	if len(places) > o.opts.MaxCandidates {
		places = places[:o.opts.MaxCandidates]
	}
	o.bus.AddressCandidates.Publish(events.AddressCandidates{Query: text, Places: places})
	if len(places) == 0 {
		zap.L().Debug("isochrone: no address candidates", zap.String("address", text))
		return
	}

	first := places[0].Point
	if o.centers != nil {
		o.centers.SetLastSelected(first)
	}
	o.bus.CenterChanged.Publish(first)
}
