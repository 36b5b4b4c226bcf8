package observer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/prognos-io/prognos/prog"
)

// PFName is the registry identifier of the particle filter.
const PFName = "PF"

// Particle filter configuration keys.
const (
	// ParticlesKey is the particle count.
	ParticlesKey = "Observer.particles"
	// ProcessNoiseKey lists one process noise variance per state.
	ProcessNoiseKey = "Observer.processNoise"
	// SensorNoiseKey lists one sensor noise variance per output.
	SensorNoiseKey = "Observer.sensorNoise"
	// MinNEffectiveKey sets the effective sample size below which the
	// filter resamples. Unset means resample on every step.
	MinNEffectiveKey = "Observer.minNEffective"
)

// ParticleFilter is a sampling-importance-resampling filter. The belief is a
// weighted particle cloud, which handles the multimodal and non-Gaussian
// posteriors that appear when a cell approaches its voltage threshold.
//
// Likelihoods are accumulated in log space and normalized against their
// maximum, so a particle far from the measurement underflows to zero weight
// instead of poisoning the normalization.
type ParticleFilter struct {
	model prog.Model
	rng   *rand.Rand

	procSD  []float64
	sensSD  []float64
	minNEff float64 // 0 means resample every step

	particles [][]float64
	weights   []float64
	uOld      []float64

	lastT       float64
	initialized bool

	// Per-step scratch, allocated once.
	logW      []float64
	noise     []float64
	zPred     []float64
	noNoiseZ  []float64
	resampled [][]float64
}

// NewParticleFilter builds a particle filter for m drawing from rng.
func NewParticleFilter(m prog.Model, cfg prog.ConfigMap, rng *rand.Rand) (*ParticleFilter, error) {
	if err := cfg.Require(ParticlesKey, ProcessNoiseKey, SensorNoiseKey); err != nil {
		return nil, err
	}
	count, err := cfg.Int(ParticlesKey)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("config key %q: need at least one particle, got %d", ParticlesKey, count)
	}
	procSD, err := noiseDeviations(cfg, ProcessNoiseKey, m.NumStates())
	if err != nil {
		return nil, err
	}
	sensSD, err := noiseDeviations(cfg, SensorNoiseKey, m.NumOutputs())
	if err != nil {
		return nil, err
	}

	minNEff := 0.0
	if cfg.Has(MinNEffectiveKey) {
		if minNEff, err = cfg.Float(MinNEffectiveKey); err != nil {
			return nil, err
		}
		if minNEff <= 0 || minNEff > float64(count) {
			return nil, fmt.Errorf("config key %q: %v outside (0, %d]", MinNEffectiveKey, minNEff, count)
		}
	}

	return &ParticleFilter{
		model:   m,
		rng:     rng,
		procSD:  procSD,
		sensSD:  sensSD,
		minNEff: minNEff,

		particles: newMatrixRows(count, m.NumStates()),
		weights:   make([]float64, count),
		uOld:      make([]float64, m.NumInputs()),

		logW:      make([]float64, count),
		noise:     make([]float64, m.NumStates()),
		zPred:     make([]float64, m.NumOutputs()),
		noNoiseZ:  make([]float64, m.NumOutputs()),
		resampled: newMatrixRows(count, m.NumStates()),
	}, nil
}

// Initialize collapses the cloud onto the known state x0 with uniform
// weights; process noise spreads it over the following steps.
func (pf *ParticleFilter) Initialize(t0 float64, x0, u0 []float64) {
	for _, p := range pf.particles {
		copy(p, x0)
	}
	uniform := 1 / float64(len(pf.particles))
	for i := range pf.weights {
		pf.weights[i] = uniform
	}
	copy(pf.uOld, u0)
	pf.lastT = t0
	pf.initialized = true
}

// Step propagates every particle to time t under process noise and
// reweights the cloud by the measurement likelihood of z.
func (pf *ParticleFilter) Step(t float64, u, z []float64) error {
	if !pf.initialized {
		return fmt.Errorf("pf: step called before initialize")
	}
	dt := t - pf.lastT

	for i, p := range pf.particles {
		for j := range pf.noise {
			pf.noise[j] = pf.rng.NormFloat64() * pf.procSD[j]
		}
		pf.model.StateEqn(t, p, pf.uOld, pf.noise, dt)
		pf.model.OutputEqn(t, p, u, pf.noNoiseZ, pf.zPred)

		lw := math.Log(pf.weights[i])
		for j, zj := range z {
			lw += distuv.Normal{Mu: pf.zPred[j], Sigma: pf.sensSD[j]}.LogProb(zj)
		}
		pf.logW[i] = lw
	}

	// The cloud is the prior at t from here on: the clock and the held
	// input advance with propagation, not with the weight update.
	copy(pf.uOld, u)
	pf.lastT = t

	maxLW := math.Inf(-1)
	for _, lw := range pf.logW {
		if lw > maxLW {
			maxLW = lw
		}
	}
	if math.IsNaN(maxLW) || math.IsInf(maxLW, -1) {
		return fmt.Errorf("pf: particle weights degenerate at t=%v", t)
	}
	sum := 0.0
	for i, lw := range pf.logW {
		pf.weights[i] = math.Exp(lw - maxLW)
		sum += pf.weights[i]
	}
	for i := range pf.weights {
		pf.weights[i] /= sum
	}

	if pf.shouldResample() {
		pf.resample()
	}
	return nil
}

func (pf *ParticleFilter) shouldResample() bool {
	if pf.minNEff == 0 {
		return true
	}
	sumSq := 0.0
	for _, w := range pf.weights {
		sumSq += w * w
	}
	return 1/sumSq < pf.minNEff
}

// resample draws a fresh uniformly-weighted cloud by systematic resampling:
// one uniform offset, then evenly spaced quantiles of the weight CDF.
func (pf *ParticleFilter) resample() {
	n := len(pf.particles)
	offset := pf.rng.Float64() / float64(n)

	cum := pf.weights[0]
	j := 0
	for i := 0; i < n; i++ {
		target := offset + float64(i)/float64(n)
		for target > cum && j < n-1 {
			j++
			cum += pf.weights[j]
		}
		copy(pf.resampled[i], pf.particles[j])
	}
	pf.particles, pf.resampled = pf.resampled, pf.particles

	uniform := 1 / float64(n)
	for i := range pf.weights {
		pf.weights[i] = uniform
	}
}

// StateEstimate returns the belief as one WeightedSamples per state
// dimension; sample i of every dimension comes from the same particle.
func (pf *ParticleFilter) StateEstimate() []prog.UData {
	n := pf.model.NumStates()
	est := make([]prog.UData, n)
	for d := 0; d < n; d++ {
		ud := prog.NewWeightedSamples(len(pf.particles))
		for i, p := range pf.particles {
			ud.Set(i, p[d])
		}
		copy(ud.WeightSlice(), pf.weights)
		est[d] = ud
	}
	return est
}

// noiseDeviations reads per-dimension variances from cfg and returns their
// square roots.
func noiseDeviations(cfg prog.ConfigMap, key string, dim int) ([]float64, error) {
	vals, err := cfg.Floats(key)
	if err != nil {
		return nil, err
	}
	if len(vals) != dim {
		return nil, fmt.Errorf("config key %q: need %d variances, got %d", key, dim, len(vals))
	}
	sd := make([]float64, dim)
	for i, v := range vals {
		if v < 0 {
			return nil, fmt.Errorf("config key %q: variance %d is negative (%v)", key, i, v)
		}
		sd[i] = math.Sqrt(v)
	}
	return sd, nil
}
