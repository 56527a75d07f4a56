// Package mocks provides test doubles for the ors client.
package mocks

import (
	"context"

	geojson "github.com/twpayne/go-geom/encoding/geojson"
	mock "github.com/stretchr/testify/mock"

	model "github.com/sells-group/orsmap/internal/model"
	ors "github.com/sells-group/orsmap/pkg/ors"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Isochrones provides a mock function with given fields: ctx, req
func (_m *MockClient) Isochrones(ctx context.Context, req ors.IsochroneRequest) (*geojson.FeatureCollection, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Isochrones")
	}

	var r0 *geojson.FeatureCollection
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, ors.IsochroneRequest) (*geojson.FeatureCollection, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*geojson.FeatureCollection)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Geocode provides a mock function with given fields: ctx, text
func (_m *MockClient) Geocode(ctx context.Context, text string) ([]model.Place, error) {
	ret := _m.Called(ctx, text)

	if len(ret) == 0 {
		panic("no return value specified for Geocode")
	}

	var r0 []model.Place
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]model.Place, error)); ok {
		return rf(ctx, text)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Place)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// ReverseGeocode provides a mock function with given fields: ctx, p
func (_m *MockClient) ReverseGeocode(ctx context.Context, p model.LatLng) (*model.Place, error) {
	ret := _m.Called(ctx, p)

	if len(ret) == 0 {
		panic("no return value specified for ReverseGeocode")
	}

	var r0 *model.Place
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.LatLng) (*model.Place, error)); ok {
		return rf(ctx, p)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Place)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Route provides a mock function with given fields: ctx, profile, start, end
func (_m *MockClient) Route(ctx context.Context, profile model.Profile, start model.LatLng, end model.LatLng) (*geojson.FeatureCollection, error) {
	ret := _m.Called(ctx, profile, start, end)

	if len(ret) == 0 {
		panic("no return value specified for Route")
	}

	var r0 *geojson.FeatureCollection
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.Profile, model.LatLng, model.LatLng) (*geojson.FeatureCollection, error)); ok {
		return rf(ctx, profile, start, end)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*geojson.FeatureCollection)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

var _ ors.Client = (*MockClient)(nil)
