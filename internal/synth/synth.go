// Package synth generates synthetic channel benchmarks for budget
// optimization. Funnel metrics (CPC, CTR, CVR) are sampled per channel and
// turned into quadratic response-curve coefficients.
package synth

import (
	"fmt"
	"math/rand"

	"github.com/channelmix/budget-allocator/internal/config"
	"github.com/channelmix/budget-allocator/internal/curve"
	"github.com/channelmix/budget-allocator/pkg/constants"
	"go.uber.org/zap"
)

// profile adjusts the sampled base metrics with a channel personality.
type profile struct {
	cpc float64
	ctr float64
	cvr float64
}

// channelProfiles holds multipliers for the well-known channels. Channels
// without a profile keep the sampled base metrics unchanged.
var channelProfiles = map[string]profile{
	"google": {cpc: 1.0, ctr: 1.2, cvr: 1.5}, // expensive clicks, strong conversion
	"meta":   {cpc: 1.0, ctr: 0.9, cvr: 1.1},
	"tiktok": {cpc: 0.6, ctr: 1.3, cvr: 0.7}, // cheap clicks, weak conversion
	"reddit": {cpc: 0.8, ctr: 1.1, cvr: 1.0},
	"x":      {cpc: 0.6, ctr: 1.0, cvr: 0.5},
}

// Benchmark holds one channel's sampled funnel metrics and the derived
// response-curve coefficients.
type Benchmark struct {
	Channel  string
	CPC      float64
	CTR      float64
	CVR      float64
	MinSpend float64
	MaxSpend float64
	CurveA   float64
	CurveB   float64
}

// ROIAtMax returns the marginal conversions per dollar at the channel's
// maximum spend, a quick read on how saturated the generated curve is.
func (b Benchmark) ROIAtMax() float64 {
	return b.CurveA - 2*b.CurveB*b.MaxSpend
}

// Curve converts the benchmark into a response curve for the solver.
func (b Benchmark) Curve() curve.Curve {
	return curve.Curve{
		Channel:    b.Channel,
		Efficiency: b.CurveA,
		Saturation: b.CurveB,
		MinSpend:   b.MinSpend,
		MaxSpend:   b.MaxSpend,
	}
}

// Curves converts a benchmark set into response curves in the same order.
func Curves(benchmarks []Benchmark) []curve.Curve {
	curves := make([]curve.Curve, len(benchmarks))
	for i, b := range benchmarks {
		curves[i] = b.Curve()
	}
	return curves
}

// DeriveCurveParams turns funnel metrics into the (a, b) coefficients of the
// quadratic response curve. The initial conversions-per-dollar rate is
// ctr*cvr/cpc; the saturation coefficient is chosen so marginal efficiency
// has dropped by SaturationEfficiencyDrop once spend reaches maxSpend.
func DeriveCurveParams(cpc, ctr, cvr, maxSpend float64) (a, b float64) {
	a = (ctr * cvr) / cpc
	b = (a * constants.SaturationEfficiencyDrop) / maxSpend
	return a, b
}

// Generate samples benchmarks for every configured channel. Sampling is
// deterministic for a given random seed.
func Generate(logger *zap.Logger, conf *config.Configuration) ([]Benchmark, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sampling := conf.Synth
	if err := sampling.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(sampling.RandomSeed))
	benchmarks := make([]Benchmark, 0, len(conf.Channels))
	for _, ch := range conf.Channels {
		if ch.MaxSpend <= 0 {
			return nil, fmt.Errorf("channel %s needs a positive maxSpend to derive curve parameters", ch.Name)
		}
		cpc := sample(rng, sampling.CpcRange)
		ctr := sample(rng, sampling.CtrRange)
		cvr := sample(rng, sampling.CvrRange)
		if p, ok := channelProfiles[ch.Name]; ok {
			cpc *= p.cpc
			ctr *= p.ctr
			cvr *= p.cvr
		}
		a, b := DeriveCurveParams(cpc, ctr, cvr, ch.MaxSpend)
		benchmark := Benchmark{
			Channel:  ch.Name,
			CPC:      cpc,
			CTR:      ctr,
			CVR:      cvr,
			MinSpend: ch.MinSpend,
			MaxSpend: ch.MaxSpend,
			CurveA:   a,
			CurveB:   b,
		}
		benchmarks = append(benchmarks, benchmark)
		logger.Debug("sampled channel benchmark",
			zap.String("channel", ch.Name),
			zap.Float64("cpc", cpc),
			zap.Float64("ctr", ctr),
			zap.Float64("cvr", cvr),
			zap.Float64("curveA", a),
			zap.Float64("curveB", b),
		)
	}
	return benchmarks, nil
}

func sample(rng *rand.Rand, bounds []float64) float64 {
	return bounds[0] + rng.Float64()*(bounds[1]-bounds[0])
}
