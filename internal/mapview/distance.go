package mapview

import (
	"math"

	"github.com/sells-group/orsmap/internal/model"
)

// earthRadius is the mean radius in meters Leaflet uses for distanceTo.
const earthRadius = 6371000.0

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b model.LatLng) float64 {
	const rad = math.Pi / 180
	lat1, lat2 := a.Lat*rad, b.Lat*rad
	sinDLat := math.Sin((b.Lat - a.Lat) * rad / 2)
	sinDLon := math.Sin((b.Lon - a.Lon) * rad / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}
