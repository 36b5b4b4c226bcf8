package battery

import "fmt"

// Params holds the electrochemistry parameterization of one cell. The upper
// block is the fitted/physical parameterization; the lower block is derived
// and only ever written by SetMobileCharge, so the charge bookkeeping can
// never go out of sync with qMobile.
type Params struct {
	QMobile float64 // mobile Li-ion charge available for intercalation

	XnMax float64 // maximum mole fraction, negative electrode
	XnMin float64 // minimum mole fraction, negative electrode
	XpMax float64 // maximum mole fraction, positive electrode
	XpMin float64 // minimum mole fraction, positive electrode; xn + xp = 1

	Ro float64 // lumped ohmic resistance (collectors, electrolyte, solid phase)

	R float64 // universal gas constant, J/K/mol
	F float64 // Faraday constant, C/mol

	Alpha float64 // anodic/cathodic transfer coefficient
	Sn    float64 // electroactive surface area, negative electrode
	Sp    float64 // electroactive surface area, positive electrode
	Kn    float64 // lumped Butler-Volmer constant, negative electrode
	Kp    float64 // lumped Butler-Volmer constant, positive electrode

	Vol          float64 // per-electrode interior volume (total is 2*Vol)
	VolSFraction float64 // fraction of Vol in the surface layer

	TDiffusion float64 // surface/bulk diffusion time constant
	To         float64 // ohmic overpotential time constant
	Tsn        float64 // surface overpotential time constant, negative electrode
	Tsp        float64 // surface overpotential time constant, positive electrode

	U0p float64     // reference potential, positive electrode
	Ap  [13]float64 // Redlich-Kister coefficients, positive electrode
	U0n float64     // reference potential, negative electrode
	An  [13]float64 // Redlich-Kister coefficients, negative electrode

	VEOD float64 // end-of-discharge voltage threshold

	// Derived charge and volume quantities.
	QMax float64 // total Li-ion charge, qn + qp
	VolS float64 // surface-layer volume
	VolB float64 // bulk volume

	QpMin, QpMax   float64 // charge bounds, positive electrode
	QpSMin, QpSMax float64 // surface charge bounds, positive electrode
	QpBMin, QpBMax float64 // bulk charge bounds, positive electrode
	QnMin, QnMax   float64 // charge bounds, negative electrode
	QnSMin, QnSMax float64 // surface charge bounds, negative electrode
	QnBMin, QnBMax float64 // bulk charge bounds, negative electrode
	QSMax          float64 // maximum surface charge, either electrode
	QBMax          float64 // maximum bulk charge, either electrode
}

// DefaultParams returns the reference 18650 cell parameterization.
func DefaultParams() Params {
	p := Params{
		XnMax: 0.6,
		XnMin: 0,
		XpMax: 1.0,
		XpMin: 0.4,

		Ro: 0.117215,

		R: 8.3144621,
		F: 96487,

		Alpha: 0.5,
		Sn:    0.000437545,
		Sp:    0.00030962,
		Kn:    2120.96,
		Kp:    248898,

		Vol:          2e-5,
		VolSFraction: 0.1,

		TDiffusion: 7e6,
		To:         6.08671,
		Tsn:        1.00138e3,
		Tsp:        46.4311,

		U0p: 4.03,
		Ap: [13]float64{
			-31593.7, 0.106747, 24606.4, -78561.9, 13317.9, 307387,
			84916.1, -1.07469e6, 2285.04, 990894, 283920, -161513, -469218,
		},
		U0n: 0.01,
		An:  [13]float64{86.19},

		VEOD: 3.2,
	}
	p.SetMobileCharge(7600)
	return p
}

// SetMobileCharge sets qMobile and recomputes the entire derived charge and
// volume chain. Derived fields are never written individually.
func (p *Params) SetMobileCharge(qMobile float64) {
	p.QMobile = qMobile
	p.QMax = qMobile / (p.XnMax - p.XnMin)

	p.VolS = p.VolSFraction * p.Vol
	p.VolB = p.Vol - p.VolS

	p.QpMin = p.QMax * p.XpMin
	p.QpMax = p.QMax * p.XpMax
	p.QpSMin = p.QpMin * p.VolS / p.Vol
	p.QpBMin = p.QpMin * p.VolB / p.Vol
	p.QpSMax = p.QpMax * p.VolS / p.Vol
	p.QpBMax = p.QpMax * p.VolB / p.Vol
	p.QnMin = p.QMax * p.XnMin
	p.QnMax = p.QMax * p.XnMax
	p.QnSMax = p.QnMax * p.VolS / p.Vol
	p.QnBMax = p.QnMax * p.VolB / p.Vol
	p.QnSMin = p.QnMin * p.VolS / p.Vol
	p.QnBMin = p.QnMin * p.VolB / p.Vol
	p.QSMax = p.QMax * p.VolS / p.Vol
	p.QBMax = p.QMax * p.VolB / p.Vol
}

// DomainPolicy selects how the model treats surface mole fractions outside
// (0, 1), where the open-circuit logarithm and the Butler-Volmer root are
// undefined. Aggressive process noise or a diverged estimate can push charge
// states past their physical range.
type DomainPolicy int

const (
	// Propagate evaluates the equations as written; out-of-domain fractions
	// yield NaN or Inf which flow to the caller.
	Propagate DomainPolicy = iota
	// Clamp pins fractions into [eps, 1-eps] before the transcendentals.
	Clamp
	// Strict panics on an out-of-domain fraction.
	Strict
)

// ParseDomainPolicy maps a config string to a DomainPolicy. The empty string
// selects Propagate.
func ParseDomainPolicy(s string) (DomainPolicy, error) {
	switch s {
	case "", "propagate":
		return Propagate, nil
	case "clamp":
		return Clamp, nil
	case "strict":
		return Strict, nil
	}
	return 0, fmt.Errorf("unknown domain policy %q, expected propagate, clamp or strict", s)
}

func (d DomainPolicy) String() string {
	switch d {
	case Propagate:
		return "propagate"
	case Clamp:
		return "clamp"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("policy(%d)", int(d))
}
