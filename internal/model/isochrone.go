package model

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Profile is an ORS travel mode. The zero value means unset and resolves to
// ProfileDriving.
type Profile string

const (
	ProfileDriving Profile = "driving-car"
	ProfileCycling Profile = "cycling-regular"
	ProfileWalking Profile = "foot-walking"
)

// Profiles lists the supported travel modes in UI order.
func Profiles() []Profile {
	return []Profile{ProfileDriving, ProfileCycling, ProfileWalking}
}

// ParseProfile accepts both ORS names and the short UI names.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "driving", string(ProfileDriving):
		return ProfileDriving, nil
	case "cycling", string(ProfileCycling):
		return ProfileCycling, nil
	case "walking", string(ProfileWalking):
		return ProfileWalking, nil
	default:
		return "", eris.Errorf("model: unknown profile %q", s)
	}
}

// OrDefault resolves an unset profile.
func (p Profile) OrDefault() Profile {
	if p == "" {
		return ProfileDriving
	}
	return p
}

// Label is a human readable name for the profile.
func (p Profile) Label() string {
	switch p.OrDefault() {
	case ProfileCycling:
		return "Cycling"
	case ProfileWalking:
		return "Walking"
	default:
		return "Driving"
	}
}

// RangeType selects whether ranges are distances or travel times. The zero
// value resolves to RangeDistance.
type RangeType string

const (
	RangeDistance RangeType = "distance"
	RangeTime     RangeType = "time"
)

// ParseRangeType validates a range type received from a client.
func ParseRangeType(s string) (RangeType, error) {
	switch RangeType(strings.ToLower(strings.TrimSpace(s))) {
	case "", RangeDistance:
		return RangeDistance, nil
	case RangeTime:
		return RangeTime, nil
	default:
		return "", eris.Errorf("model: unknown range type %q", s)
	}
}

// OrDefault resolves an unset range type.
func (t RangeType) OrDefault() RangeType {
	if t == "" {
		return RangeDistance
	}
	return t
}

// Unit is the UI unit for the range type.
func (t RangeType) Unit() string {
	if t.OrDefault() == RangeTime {
		return "min"
	}
	return "km"
}

// ToTransport converts a UI magnitude (km or minutes) to transport units
// (meters or seconds).
func (t RangeType) ToTransport(v float64) int {
	if t.OrDefault() == RangeTime {
		return int(math.Round(v * 60))
	}
	return int(math.Round(v * 1000))
}

// RequestDetail is the payload carried by parameter-changed and generate
// events. Range and Interval are in transport units.
type RequestDetail struct {
	Range     int       `json:"range"`
	Interval  int       `json:"interval"`
	Profile   Profile   `json:"profile,omitempty"`
	RangeType RangeType `json:"range_type,omitempty"`
	Address   string    `json:"address,omitempty"`
}

// WithDefaults returns a copy with unset variant fields resolved.
func (d RequestDetail) WithDefaults() RequestDetail {
	d.Profile = d.Profile.OrDefault()
	d.RangeType = d.RangeType.OrDefault()
	d.Address = strings.TrimSpace(d.Address)
	return d
}

// HasAddress reports whether the detail carries a non-blank address.
func (d RequestDetail) HasAddress() bool {
	return strings.TrimSpace(d.Address) != ""
}

// PanelState is a snapshot of the isochrone parameter panel in UI units.
type PanelState struct {
	RangeType RangeType `json:"range_type"`
	Range     float64   `json:"range"`
	Interval  float64   `json:"interval"`
	Profile   Profile   `json:"profile"`
	Address   string    `json:"address"`
	Typed     bool      `json:"address_typed"`
	Dirty     bool      `json:"dirty"`
	MaxRange  float64   `json:"max_range"`
	Unit      string    `json:"unit"`
}

// Detail materializes the panel state into a request detail. The address
// is carried only while it is user-typed; a reverse-geocoded label is for
// display.
func (s PanelState) Detail() RequestDetail {
	d := RequestDetail{
		Range:     s.RangeType.ToTransport(s.Range),
		Interval:  s.RangeType.ToTransport(s.Interval),
		Profile:   s.Profile,
		RangeType: s.RangeType,
	}
	if s.Typed {
		d.Address = s.Address
	}
	return d
}
