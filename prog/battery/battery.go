// Package battery implements the reference electrochemical cell model for
// end-of-discharge prognosis: an eight-state lumped-parameter lithium-ion
// model with Redlich-Kister open-circuit potentials, Butler-Volmer surface
// overpotentials and first-order surface/bulk diffusion.
package battery

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/prognos-io/prognos/prog"
)

// State vector indices.
const (
	StateTb  = iota // bulk temperature, K
	StateVo         // ohmic overpotential, V
	StateVsn        // surface overpotential, negative electrode, V
	StateVsp        // surface overpotential, positive electrode, V
	StateQnB        // bulk charge, negative electrode
	StateQnS        // surface charge, negative electrode
	StateQpB        // bulk charge, positive electrode
	StateQpS        // surface charge, positive electrode

	numStates
)

// Output vector indices.
const (
	OutputTbm = iota // surface temperature, degrees C
	OutputVm         // terminal voltage, V

	numOutputs
)

// Name is the identifier the model registers under.
const Name = "Battery"

// Configuration keys recognized by New. All are optional overrides of
// DefaultParams.
const (
	QMobileKey      = "Battery.qMobile"
	RoKey           = "Battery.Ro"
	VEODKey         = "Battery.VEOD"
	DomainPolicyKey = "Battery.domainPolicy"
)

const fractionEps = 1e-6

// Battery models a lithium-ion cell. One input (applied power), two measured
// outputs (surface temperature, terminal voltage), one predicted output
// (state of charge). The end-of-life event is the terminal voltage reaching
// the end-of-discharge threshold.
//
// The instance itself is immutable after construction, so all methods are
// safe for concurrent use.
type Battery struct {
	P      Params
	policy DomainPolicy
}

// New builds a Battery from DefaultParams with any config overrides applied.
func New(cfg prog.ConfigMap) (*Battery, error) {
	b := &Battery{P: DefaultParams()}
	if cfg.Has(QMobileKey) {
		v, err := cfg.Float(QMobileKey)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("config key %q: mobile charge must be positive, got %v", QMobileKey, v)
		}
		b.P.SetMobileCharge(v)
	}
	if cfg.Has(RoKey) {
		v, err := cfg.Float(RoKey)
		if err != nil {
			return nil, err
		}
		b.P.Ro = v
	}
	if cfg.Has(VEODKey) {
		v, err := cfg.Float(VEODKey)
		if err != nil {
			return nil, err
		}
		b.P.VEOD = v
	}
	if cfg.Has(DomainPolicyKey) {
		s, err := cfg.String(DomainPolicyKey)
		if err != nil {
			return nil, err
		}
		policy, err := ParseDomainPolicy(s)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", DomainPolicyKey, err)
		}
		b.policy = policy
	}
	return b, nil
}

func (b *Battery) NumStates() int           { return numStates }
func (b *Battery) NumInputs() int           { return 1 }
func (b *Battery) NumOutputs() int          { return numOutputs }
func (b *Battery) NumInputParams() int      { return 2 }
func (b *Battery) NumPredictedOutputs() int { return 1 }

// Timestep returns the nominal integration step: one second.
func (b *Battery) Timestep() float64 { return 1 }

// checkFraction applies the domain policy to a surface mole fraction before
// it reaches the logarithm or the Butler-Volmer square root.
func (b *Battery) checkFraction(x float64) float64 {
	switch b.policy {
	case Clamp:
		if x < fractionEps {
			return fractionEps
		}
		if x > 1-fractionEps {
			return 1 - fractionEps
		}
	case Strict:
		if !(x > 0 && x < 1) {
			logrus.Panicf("battery: surface mole fraction %v outside (0, 1)", x)
		}
	}
	return x
}

// electrodePotential evaluates the open-circuit potential of one electrode at
// surface mole fraction x and temperature tb: the reference potential, the
// 13-term Redlich-Kister expansion, and the ideal-solution log term.
func (b *Battery) electrodePotential(u0 float64, a *[13]float64, x, tb float64) float64 {
	p := &b.P
	v := u0 + a[0]*(2*x-1)/p.F
	for k := 1; k < len(a); k++ {
		if a[k] == 0 {
			continue
		}
		kf := float64(k)
		v += a[k] * (math.Pow(2*x-1, kf+1) - 2*kf*x*(1-x)*math.Pow(2*x-1, kf-1)) / p.F
	}
	return v + p.R*tb*math.Log((1-x)/x)/p.F
}

// StateEqn advances the cell by one explicit Euler step. The terminal voltage
// is assembled from the overpotential lag states, so the load current below
// is explicit in the previous step's filtered values. Do not replace this
// with an implicit solve; the filter time constants absorb the algebraic
// loop between voltage and current.
func (b *Battery) StateEqn(t float64, x, u, n []float64, dt float64) {
	p := &b.P

	tb := x[StateTb]
	vo := x[StateVo]
	vsn := x[StateVsn]
	vsp := x[StateVsp]
	qnB := x[StateQnB]
	qnS := x[StateQnS]
	qpB := x[StateQpB]
	qpS := x[StateQpS]

	power := u[0]

	// Diffusion between bulk and surface volumes, driven by the
	// concentration difference at each electrode.
	cnBulk := qnB / p.VolB
	cnSurface := qnS / p.VolS
	cpBulk := qpB / p.VolB
	cpSurface := qpS / p.VolS
	diffusionN := (cnBulk - cnSurface) / p.TDiffusion
	diffusionP := (cpBulk - cpSurface) / p.TDiffusion

	xnS := b.checkFraction(qnS / p.QSMax)
	xpS := b.checkFraction(qpS / p.QSMax)

	ven := b.electrodePotential(p.U0n, &p.An, xnS, tb)
	vep := b.electrodePotential(p.U0p, &p.Ap, xpS, tb)

	// The voltage/current coupling is implicit: i sets the overpotentials
	// that in turn set v. No inner solve happens here; v is formed from the
	// lagged overpotential states and the first-order lag dynamics carry
	// the correction.
	v := -ven + vep - vo - vsn - vsp
	i := power / v

	// Exchange current densities. The positive electrode normalizes by the
	// bulk maximum; the Butler-Volmer constants were fit against exactly
	// this form, so it must not be "corrected" to the surface maximum.
	jn := i / p.Sn
	jp := i / p.Sp
	jn0 := p.Kn * math.Pow(xnS, p.Alpha) * math.Pow(1-xnS, p.Alpha)
	xSp := b.checkFraction(qpS / p.QBMax)
	jp0 := p.Kp * math.Pow(xSp, p.Alpha) * math.Pow(1-xSp, p.Alpha)

	voNominal := p.Ro * i
	vsnNominal := p.R * tb * math.Asinh(0.5*jn/jn0) / (p.F * p.Alpha)
	vspNominal := p.R * tb * math.Asinh(0.5*jp/jp0) / (p.F * p.Alpha)

	tbDot := 0.0
	voDot := (-vo + voNominal) / p.To
	vsnDot := (-vsn + vsnNominal) / p.Tsn
	vspDot := (-vsp + vspNominal) / p.Tsp
	qnBDot := -diffusionN
	qnSDot := -i + diffusionN
	qpBDot := -diffusionP
	qpSDot := i + diffusionP

	x[StateTb] = tb + tbDot*dt
	x[StateVo] = vo + voDot*dt
	x[StateVsn] = vsn + vsnDot*dt
	x[StateVsp] = vsp + vspDot*dt
	x[StateQnB] = qnB + qnBDot*dt
	x[StateQnS] = qnS + qnSDot*dt
	x[StateQpB] = qpB + qpBDot*dt
	x[StateQpS] = qpS + qpSDot*dt

	for j := range x {
		x[j] += dt * n[j]
	}
}

// OutputEqn measures surface temperature (degrees C) and terminal voltage.
func (b *Battery) OutputEqn(t float64, x, u, n, z []float64) {
	p := &b.P
	tb := x[StateTb]

	xnS := b.checkFraction(x[StateQnS] / p.QSMax)
	xpS := b.checkFraction(x[StateQpS] / p.QSMax)
	ven := b.electrodePotential(p.U0n, &p.An, xnS, tb)
	vep := b.electrodePotential(p.U0p, &p.Ap, xpS, tb)
	v := -ven + vep - x[StateVo] - x[StateVsn] - x[StateVsp]

	z[OutputTbm] = tb - 273.15 + n[0]
	z[OutputVm] = v + n[1]
}

// ThresholdEqn reports end of discharge: the noise-free terminal voltage at
// or below the VEOD threshold.
func (b *Battery) ThresholdEqn(t float64, x, u []float64) bool {
	z := make([]float64, numOutputs)
	zeroNoise := make([]float64, numOutputs)
	b.OutputEqn(t, x, u, zeroNoise, z)
	return z[OutputVm] <= b.P.VEOD
}

// InputEqn synthesizes the applied power from a piecewise-constant load
// profile of (magnitude, duration) pairs.
func (b *Battery) InputEqn(t float64, params, u []float64) error {
	power, err := prog.PiecewiseInput(t, params)
	if err != nil {
		return err
	}
	u[0] = power
	return nil
}

// PredictedOutputEqn computes the state of charge from the total charge in
// the negative electrode.
func (b *Battery) PredictedOutputEqn(t float64, x, u, z []float64) {
	z[0] = (x[StateQnS] + x[StateQnB]) / b.P.QnMax
}

// Initialize reconstructs the state from one observation: temperature maps
// directly to the thermal state, and the charge split is found by sweeping
// the positive mole fraction from full charge toward full discharge until
// the predicted voltage under the observed ohmic drop first falls to the
// observed voltage. If the sweep exhausts the grid without a match, the last
// scanned candidate is kept. Overpotential lag states start at zero except
// the ohmic drop, which is consistent with the observed current.
func (b *Battery) Initialize(u, z []float64) []float64 {
	p := &b.P

	tb := z[OutputTbm] + 273.15
	voltage := z[OutputVm]
	current := u[0] / voltage
	vo := current * p.Ro

	xpo, xno := 0.4, 0.6
	for xi := 0.4; xi <= 1.0; xi += 0.0001 {
		xp := xi
		xn := 1 - xi
		vep := b.electrodePotential(p.U0p, &p.Ap, xp, tb)
		ven := b.electrodePotential(p.U0n, &p.An, xn, tb)
		xpo, xno = xp, xn
		// The grid starts fully charged, so the first candidate whose
		// predicted voltage drops to the observation is the one.
		if vep-ven-vo <= voltage {
			break
		}
	}

	qpS0 := p.QMax * xpo * p.VolS / p.Vol
	qnS0 := p.QMax * xno * p.VolS / p.Vol
	// Bulk charges assume no concentration gradient at rest.
	qpB0 := qpS0 * p.VolB / p.VolS
	qnB0 := qnS0 * p.VolB / p.VolS

	x := make([]float64, numStates)
	x[StateTb] = tb
	x[StateVo] = vo
	x[StateVsn] = 0
	x[StateVsp] = 0
	x[StateQnB] = qnB0
	x[StateQnS] = qnS0
	x[StateQpB] = qpB0
	x[StateQpS] = qpS0
	return x
}
