// Package geo selects restaurant candidates around a query point using
// great-circle distance.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// EarthRadiusKM is the mean Earth radius used for all distance math.
const EarthRadiusKM = 6371.0

// KMToMiles converts kilometers to statute miles.
const KMToMiles = 0.621371

// bboxPadDeg widens bounding boxes so float error never drops a point that
// sits exactly on the search radius.
const bboxPadDeg = 1e-6

var (
	// ErrInvalidLocation is returned when a query origin is absent or unusable.
	ErrInvalidLocation = eris.New("geo: invalid location")
	// ErrInvalidSearch is returned for a non-positive radius or limit.
	ErrInvalidSearch = eris.New("geo: invalid search parameters")
)

// Point is a position in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint validates an optional lat/lon pair. The returned error wraps
// ErrInvalidLocation and names the offending field.
func NewPoint(lat, lon *float64) (Point, error) {
	if lat == nil {
		return Point{}, eris.Wrap(ErrInvalidLocation, "lat is required")
	}
	if lon == nil {
		return Point{}, eris.Wrap(ErrInvalidLocation, "lon is required")
	}
	if math.IsNaN(*lat) || math.IsInf(*lat, 0) || *lat < -90 || *lat > 90 {
		return Point{}, eris.Wrapf(ErrInvalidLocation, "lat %v out of range", *lat)
	}
	if math.IsNaN(*lon) || math.IsInf(*lon, 0) || *lon < -180 || *lon > 180 {
		return Point{}, eris.Wrapf(ErrInvalidLocation, "lon %v out of range", *lon)
	}
	return Point{Lat: *lat, Lon: *lon}, nil
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in kilometers
// using the spherical law of cosines. The cosine term is clamped to [-1, 1]
// so rounding never produces NaN for coincident or antipodal points.
func Distance(a, b Point) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)

	cos := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon)
	cos = math.Max(-1, math.Min(1, cos))

	return EarthRadiusKM * math.Acos(cos)
}

// BoundingBox returns an XY (lon, lat) box that encloses every point within
// radiusKM of origin. It returns nil when the box would reach a pole or wrap
// the antimeridian; callers then scan without a pre-filter.
func BoundingBox(origin Point, radiusKM float64) *geom.Bounds {
	if radiusKM <= 0 {
		return nil
	}
	angular := radiusKM / EarthRadiusKM
	if angular >= math.Pi/2 {
		return nil
	}

	dLat := toDeg(angular)
	minLat, maxLat := origin.Lat-dLat, origin.Lat+dLat
	if minLat <= -90 || maxLat >= 90 {
		return nil
	}

	dLon := toDeg(math.Asin(math.Sin(angular) / math.Cos(toRad(origin.Lat))))
	minLon, maxLon := origin.Lon-dLon, origin.Lon+dLon
	if minLon < -180 || maxLon > 180 {
		return nil
	}

	return geom.NewBounds(geom.XY).Set(
		minLon-bboxPadDeg, minLat-bboxPadDeg,
		maxLon+bboxPadDeg, maxLat+bboxPadDeg,
	)
}
