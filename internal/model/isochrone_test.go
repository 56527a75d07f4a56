package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Profile
	}{
		{"", ProfileDriving},
		{"driving", ProfileDriving},
		{"driving-car", ProfileDriving},
		{"Cycling", ProfileCycling},
		{"cycling-regular", ProfileCycling},
		{" walking ", ProfileWalking},
		{"foot-walking", ProfileWalking},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseProfile(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseProfile("boat")
	assert.Error(t, err)
}

func TestParseRangeType(t *testing.T) {
	t.Parallel()

	rt, err := ParseRangeType("")
	require.NoError(t, err)
	assert.Equal(t, RangeDistance, rt)

	rt, err = ParseRangeType("TIME")
	require.NoError(t, err)
	assert.Equal(t, RangeTime, rt)

	_, err = ParseRangeType("speed")
	assert.Error(t, err)
}

func TestRangeType_ToTransport(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 15000, RangeDistance.ToTransport(15))
	assert.Equal(t, 2500, RangeDistance.ToTransport(2.5))
	assert.Equal(t, 900, RangeTime.ToTransport(15))
	assert.Equal(t, 3000, RangeType("").ToTransport(3))
	assert.Equal(t, "km", RangeType("").Unit())
	assert.Equal(t, "min", RangeTime.Unit())
}

func TestRequestDetail_WithDefaults(t *testing.T) {
	t.Parallel()

	d := RequestDetail{Range: 15000, Interval: 3000, Address: "  Lublin  "}.WithDefaults()
	assert.Equal(t, ProfileDriving, d.Profile)
	assert.Equal(t, RangeDistance, d.RangeType)
	assert.Equal(t, "Lublin", d.Address)
	assert.True(t, d.HasAddress())

	d = RequestDetail{Profile: ProfileWalking, RangeType: RangeTime}.WithDefaults()
	assert.Equal(t, ProfileWalking, d.Profile)
	assert.Equal(t, RangeTime, d.RangeType)
	assert.False(t, d.HasAddress())
}

func TestPanelState_Detail(t *testing.T) {
	t.Parallel()

	s := PanelState{RangeType: RangeDistance, Range: 15, Interval: 3, Profile: ProfileCycling, Address: "x", Typed: true}
	assert.Equal(t, RequestDetail{
		Range:     15000,
		Interval:  3000,
		Profile:   ProfileCycling,
		RangeType: RangeDistance,
		Address:   "x",
	}, s.Detail())

	s.Typed = false
	assert.False(t, s.Detail().HasAddress(), "a resolved label is display only")
}

func TestParseLatLng(t *testing.T) {
	t.Parallel()

	p, err := ParseLatLng("51.2465, 22.5684")
	require.NoError(t, err)
	assert.InDelta(t, 51.2465, p.Lat, 1e-9)
	assert.InDelta(t, 22.5684, p.Lon, 1e-9)
	assert.Equal(t, []float64{22.5684, 51.2465}, p.LonLat())
	assert.Equal(t, "22.5684,51.2465", p.Param())

	pt := p.Point()
	assert.InDelta(t, 22.5684, pt.X(), 1e-9)
	assert.InDelta(t, 51.2465, pt.Y(), 1e-9)

	_, err = ParseLatLng("91,0")
	assert.Error(t, err)
	_, err = ParseLatLng("abc")
	assert.Error(t, err)
	_, err = ParseLatLng("1,x")
	assert.Error(t, err)
}

func TestParseMarkerKind(t *testing.T) {
	t.Parallel()

	k, err := ParseMarkerKind("Center")
	require.NoError(t, err)
	assert.Equal(t, MarkerCenter, k)

	_, err = ParseMarkerKind("waypoint")
	assert.Error(t, err)
}
