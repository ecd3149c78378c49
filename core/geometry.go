package core

import (
	"math"
	"math/rand/v2"

	"github.com/marketlens/market-simulator/model"
)

// kmPerDegreeLat is the approximate north-south extent of one degree of
// latitude. Longitude degrees shrink with cos(latitude).
const kmPerDegreeLat = 111.0

// RandomPointInCircle draws a point uniformly by area within the circle of
// radiusKm around center. The radius is sampled as R·√U so the draw is not
// biased toward the centre.
func RandomPointInCircle(center model.GeoPoint, radiusKm float64, rng *rand.Rand) model.GeoPoint {
	r := radiusKm * math.Sqrt(rng.Float64())
	theta := 2 * math.Pi * rng.Float64()

	latOffset := r * math.Cos(theta) / kmPerDegreeLat
	lonOffset := r * math.Sin(theta) / (kmPerDegreeLat * math.Cos(center.Lat*math.Pi/180))

	return model.GeoPoint{
		Lat: center.Lat + latOffset,
		Lon: center.Lon + lonOffset,
	}
}

// RandomPointInCells picks a cell by weighted random choice proportional to
// demand weight, then jitters around its centroid with a normal spread of
// jitterStdKm. A zero jitter returns the centroid itself. Returns the sampled
// point and the chosen cell's ID.
//
// When every cell has zero demand weight, cells are drawn uniformly instead
// so a degenerate dataset still samples somewhere inside the market.
func RandomPointInCells(cells []model.PostalCell, jitterStdKm float64, rng *rand.Rand) (model.GeoPoint, string) {
	if len(cells) == 0 {
		return model.GeoPoint{}, ""
	}

	var total float64
	for i := range cells {
		total += cells[i].DemandWeight
	}

	chosen := &cells[0]
	if total > 0 {
		u := rng.Float64() * total
		var cum float64
		for i := range cells {
			cum += cells[i].DemandWeight
			if u < cum {
				chosen = &cells[i]
				break
			}
		}
	} else {
		chosen = &cells[rng.IntN(len(cells))]
	}

	point := chosen.Centroid
	if jitterStdKm > 0 {
		latStd := jitterStdKm / kmPerDegreeLat
		lonStd := jitterStdKm / (kmPerDegreeLat * math.Cos(chosen.Centroid.Lat*math.Pi/180))
		point = model.GeoPoint{
			Lat: chosen.Centroid.Lat + rng.NormFloat64()*latStd,
			Lon: chosen.Centroid.Lon + rng.NormFloat64()*lonStd,
		}
	}
	return point, chosen.ID
}

// SampleSearchPoint dispatches to the per-kind point sampler. For postal-code
// markets the returned cell ID names the cell the search was anchored to; it
// is empty for location-based markets.
func SampleSearchPoint(m *model.Market, jitterStdKm float64, rng *rand.Rand) (model.GeoPoint, string) {
	switch m.Kind {
	case model.MarketKindLocation:
		return RandomPointInCircle(m.Center, m.RadiusKm, rng), ""
	case model.MarketKindPostalCode:
		return RandomPointInCells(m.Cells, jitterStdKm, rng)
	default:
		return model.GeoPoint{}, ""
	}
}
