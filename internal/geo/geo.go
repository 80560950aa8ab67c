// Package geo holds great-circle helpers shared by the city matcher, the
// mosque ranking and the qibla bearing.
package geo

import "math"

const earthRadiusKm = 6371.0088

// Kaaba coordinates.
const (
	KaabaLat = 21.422487
	KaabaLon = 39.826206
)

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

// DistanceKm is the haversine distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing is the initial great-circle bearing from point 1 to point 2, in
// degrees clockwise from true north, normalized to [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	φ1, φ2 := rad(lat1), rad(lat2)
	Δλ := rad(lon2 - lon1)
	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	return math.Mod(deg(math.Atan2(y, x))+360, 360)
}

// Qibla is the bearing from lat/lon to the Kaaba.
func Qibla(lat, lon float64) float64 {
	return Bearing(lat, lon, KaabaLat, KaabaLon)
}
