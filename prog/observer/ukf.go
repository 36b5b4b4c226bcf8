// Package observer provides the state estimators that track a model's
// hidden state from streaming measurements: an unscented Kalman filter for
// near-Gaussian beliefs and a particle filter for everything else. Both
// consume the model contract only, so any registered model works with any
// estimator.
package observer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/prognos-io/prognos/prog"
)

// UKFName is the registry identifier of the unscented Kalman filter.
const UKFName = "UKF"

// Configuration keys shared by the estimators.
const (
	// QKey is the process noise covariance: either one variance per state
	// (diagonal) or a full row-major matrix.
	QKey = "Observer.Q"
	// RKey is the sensor noise covariance: either one variance per output
	// (diagonal) or a full row-major matrix.
	RKey = "Observer.R"
	// KappaKey tunes the sigma point spread. Defaults to 3 - numStates.
	KappaKey = "Observer.kappa"
)

// UKF is an unscented Kalman filter over a model's state equation. The
// belief is a mean and covariance; 2n+1 sigma points are propagated through
// the full nonlinear state and output equations, so no Jacobians are needed.
type UKF struct {
	model prog.Model
	q     *mat.SymDense
	r     *mat.SymDense

	w      []float64 // sigma point weights, first entry is the center point
	spread float64   // sqrt(n + kappa)

	x    []float64
	p    *mat.SymDense
	uOld []float64

	lastT       float64
	initialized bool

	// Per-step scratch, allocated once.
	sigma      [][]float64
	zSigma     [][]float64
	xPred      []float64
	zPred      []float64
	noNoiseX   []float64
	noNoiseZ   []float64
	pPred      *mat.SymDense
	pzz        *mat.SymDense
	pxzT       *mat.Dense
	chol       mat.Cholesky
	cholFactor mat.TriDense
}

// NewUKF builds a UKF for m. The filter itself is deterministic; the rng
// argument of the registry constructor is unused.
func NewUKF(m prog.Model, cfg prog.ConfigMap, _ *rand.Rand) (*UKF, error) {
	if err := cfg.Require(QKey, RKey); err != nil {
		return nil, err
	}
	n := m.NumStates()
	no := m.NumOutputs()

	q, err := noiseCovariance(cfg, QKey, n)
	if err != nil {
		return nil, err
	}
	r, err := noiseCovariance(cfg, RKey, no)
	if err != nil {
		return nil, err
	}

	kappa := 3 - float64(n)
	if cfg.Has(KappaKey) {
		if kappa, err = cfg.Float(KappaKey); err != nil {
			return nil, err
		}
	}
	if float64(n)+kappa <= 0 {
		return nil, fmt.Errorf("config key %q: kappa %v must exceed -numStates (%d)", KappaKey, kappa, -n)
	}

	kf := &UKF{
		model:  m,
		q:      q,
		r:      r,
		spread: math.Sqrt(float64(n) + kappa),
		w:      make([]float64, 2*n+1),

		x:    make([]float64, n),
		p:    mat.NewSymDense(n, nil),
		uOld: make([]float64, m.NumInputs()),

		sigma:    newMatrixRows(2*n+1, n),
		zSigma:   newMatrixRows(2*n+1, no),
		xPred:    make([]float64, n),
		zPred:    make([]float64, no),
		noNoiseX: make([]float64, n),
		noNoiseZ: make([]float64, no),
		pPred:    mat.NewSymDense(n, nil),
		pzz:      mat.NewSymDense(no, nil),
		pxzT:     mat.NewDense(no, n, nil),
	}
	kf.w[0] = kappa / (float64(n) + kappa)
	for i := 1; i < len(kf.w); i++ {
		kf.w[i] = 1 / (2 * (float64(n) + kappa))
	}
	return kf, nil
}

// Initialize seeds the belief at the known state x0. The covariance starts
// at the process noise Q, which keeps the first sigma point factorization
// well defined.
func (kf *UKF) Initialize(t0 float64, x0, u0 []float64) {
	copy(kf.x, x0)
	kf.p.CopySym(kf.q)
	copy(kf.uOld, u0)
	kf.lastT = t0
	kf.initialized = true
}

// Step runs one predict/update cycle to time t against measurement z.
func (kf *UKF) Step(t float64, u, z []float64) error {
	if !kf.initialized {
		return fmt.Errorf("ukf: step called before initialize")
	}
	n := kf.model.NumStates()
	no := kf.model.NumOutputs()
	dt := t - kf.lastT

	if !kf.chol.Factorize(kf.p) {
		return fmt.Errorf("ukf: state covariance is not positive definite")
	}
	kf.chol.LTo(&kf.cholFactor)

	// Sigma points around the current mean, then propagated in place.
	copy(kf.sigma[0], kf.x)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			d := kf.spread * kf.cholFactor.At(i, j)
			kf.sigma[1+j][i] = kf.x[i] + d
			kf.sigma[1+n+j][i] = kf.x[i] - d
		}
	}
	for _, pt := range kf.sigma {
		kf.model.StateEqn(t, pt, kf.uOld, kf.noNoiseX, dt)
	}

	for i := range kf.xPred {
		kf.xPred[i] = 0
	}
	for s, pt := range kf.sigma {
		for i, v := range pt {
			kf.xPred[i] += kf.w[s] * v
		}
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := kf.q.At(i, j)
			for s, pt := range kf.sigma {
				sum += kf.w[s] * (pt[i] - kf.xPred[i]) * (pt[j] - kf.xPred[j])
			}
			kf.pPred.SetSym(i, j, sum)
		}
	}

	// Measurement prediction from the same propagated points.
	for s, pt := range kf.sigma {
		kf.model.OutputEqn(t, pt, u, kf.noNoiseZ, kf.zSigma[s])
	}
	for j := range kf.zPred {
		kf.zPred[j] = 0
	}
	for s, zs := range kf.zSigma {
		for j, v := range zs {
			kf.zPred[j] += kf.w[s] * v
		}
	}
	for i := 0; i < no; i++ {
		for j := i; j < no; j++ {
			sum := kf.r.At(i, j)
			for s, zs := range kf.zSigma {
				sum += kf.w[s] * (zs[i] - kf.zPred[i]) * (zs[j] - kf.zPred[j])
			}
			kf.pzz.SetSym(i, j, sum)
		}
	}
	for j := 0; j < no; j++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			for s := range kf.sigma {
				sum += kf.w[s] * (kf.sigma[s][i] - kf.xPred[i]) * (kf.zSigma[s][j] - kf.zPred[j])
			}
			kf.pxzT.Set(j, i, sum)
		}
	}

	// Kalman gain from Pzz Kt = Pxzt, then the usual mean and covariance
	// update.
	var kt mat.Dense
	if err := kt.Solve(kf.pzz, kf.pxzT); err != nil {
		return fmt.Errorf("ukf: innovation covariance is singular: %w", err)
	}
	for i := 0; i < n; i++ {
		v := kf.xPred[i]
		for j := 0; j < no; j++ {
			v += kt.At(j, i) * (z[j] - kf.zPred[j])
		}
		kf.x[i] = v
	}
	var kpzz, kpzzKt mat.Dense
	kpzz.Mul(kt.T(), kf.pzz)
	kpzzKt.Mul(&kpzz, &kt)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			down := (kpzzKt.At(i, j) + kpzzKt.At(j, i)) / 2
			kf.p.SetSym(i, j, kf.pPred.At(i, j)-down)
		}
	}

	copy(kf.uOld, u)
	kf.lastT = t
	return nil
}

// StateEstimate returns the belief as one MeanCovar per state dimension.
func (kf *UKF) StateEstimate() []prog.UData {
	n := len(kf.x)
	est := make([]prog.UData, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row[j] = kf.p.At(i, j)
		}
		est[i] = prog.NewMeanCovar(kf.x[i], row)
	}
	return est
}

// noiseCovariance reads a covariance from cfg: dim values configure a
// diagonal, dim*dim values a full row-major matrix (symmetrized).
func noiseCovariance(cfg prog.ConfigMap, key string, dim int) (*mat.SymDense, error) {
	vals, err := cfg.Floats(key)
	if err != nil {
		return nil, err
	}
	s := mat.NewSymDense(dim, nil)
	switch len(vals) {
	case dim:
		for i, v := range vals {
			s.SetSym(i, i, v)
		}
	case dim * dim:
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				s.SetSym(i, j, (vals[i*dim+j]+vals[j*dim+i])/2)
			}
		}
	default:
		return nil, fmt.Errorf("config key %q: need %d variances or a %dx%d row-major matrix, got %d values",
			key, dim, dim, dim, len(vals))
	}
	return s, nil
}

func newMatrixRows(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
