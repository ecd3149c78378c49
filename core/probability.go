package core

import (
	"math"

	"github.com/marketlens/market-simulator/model"
)

// QualityAdjustment maps a provider quality score in [0, 1] to a
// multiplicative factor on bid/connection likelihood. Must be monotonic.
type QualityAdjustment func(score float64) float64

// CapacityAdjustment maps a provider's capacity situation to a multiplicative
// factor in (0, 1]: trending toward a floor, never exactly zero, as
// utilisation approaches 1.
type CapacityAdjustment func(p *model.Provider) float64

// LinearQualityAdjustment returns a linear blend centred on a score of 0.5:
//
//	quality(s) = 1 + w·(2s − 1)
//
// so a median-quality provider is unaffected, better providers are boosted up
// to 1+w and worse ones damped down to 1−w. The curve shape is deliberately
// injectable so it can be replaced without touching the matching algorithm.
func LinearQualityAdjustment(weight float64) QualityAdjustment {
	return func(score float64) float64 {
		return 1 + weight*(2*score-1)
	}
}

// TeamCapacityAdjustment derives a provider's capacity from team size:
// capacity shrinks linearly as active connections approach
// teamSize·maxPerMember and is floored at minFactor.
func TeamCapacityAdjustment(maxPerMember int, minFactor float64) CapacityAdjustment {
	return func(p *model.Provider) float64 {
		maxConnections := float64(p.TeamSize * maxPerMember)
		factor := 1 - float64(p.ActiveConnections)/maxConnections
		return math.Max(minFactor, factor)
	}
}

// probabilityModel evaluates bid and connection probabilities for one run.
// Both curves are pure functions of their inputs; the only randomness in the
// simulation lives in the engine's draw stream.
type probabilityModel struct {
	baseBid        float64
	baseConnection float64
	decay          float64
	quality        QualityAdjustment
	capacity       CapacityAdjustment

	// onAnomaly is invoked when a computed probability falls outside
	// [0, 1] before clamping. Recovered locally; never aborts a run.
	onAnomaly func(stage string, value float64)
}

func (m *probabilityModel) bidProbability(p *model.Provider, distanceKm float64) float64 {
	raw := m.baseBid *
		math.Exp(-m.decay*distanceKm) *
		m.quality(p.Score) *
		m.capacity(p)
	return m.clamp("bid", raw)
}

func (m *probabilityModel) connectionProbability(p *model.Provider, distanceKm float64) float64 {
	raw := m.baseConnection *
		math.Exp(-m.decay*distanceKm) *
		m.quality(p.Score)
	return m.clamp("connection", raw)
}

func (m *probabilityModel) clamp(stage string, v float64) float64 {
	if v < 0 || v > 1 || math.IsNaN(v) {
		if m.onAnomaly != nil {
			m.onAnomaly(stage, v)
		}
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
