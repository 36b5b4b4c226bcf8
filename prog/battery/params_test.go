package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams_DerivedChainIsConsistent(t *testing.T) {
	p := DefaultParams()

	assert.Equal(t, 7600.0, p.QMobile)
	assert.InEpsilon(t, 7600.0/0.6, p.QMax, 1e-12)

	// Volume split
	assert.InEpsilon(t, p.Vol, p.VolS+p.VolB, 1e-12)
	assert.InEpsilon(t, p.VolSFraction*p.Vol, p.VolS, 1e-12)

	// Surface and bulk maxima partition the total
	assert.InEpsilon(t, p.QMax, p.QSMax+p.QBMax, 1e-12)
	assert.InEpsilon(t, p.QpMax, p.QpSMax+p.QpBMax, 1e-12)
	assert.InEpsilon(t, p.QnMax, p.QnSMax+p.QnBMax, 1e-12)

	// Electrode bounds follow the mole-fraction window
	assert.InEpsilon(t, p.QMax*p.XpMin, p.QpMin, 1e-12)
	assert.InEpsilon(t, p.QMax*p.XnMax, p.QnMax, 1e-12)
	assert.Equal(t, 0.0, p.QnMin)
}

func TestSetMobileCharge_RescalesEverything(t *testing.T) {
	p := DefaultParams()
	p.SetMobileCharge(3800)

	half := DefaultParams()
	assert.InEpsilon(t, half.QMax/2, p.QMax, 1e-12)
	assert.InEpsilon(t, half.QSMax/2, p.QSMax, 1e-12)
	assert.InEpsilon(t, half.QnBMax/2, p.QnBMax, 1e-12)
	assert.InEpsilon(t, half.QpSMax/2, p.QpSMax, 1e-12)

	// Volumes do not depend on the mobile charge
	assert.Equal(t, half.VolS, p.VolS)
	assert.Equal(t, half.VolB, p.VolB)
}

func TestParseDomainPolicy(t *testing.T) {
	for in, want := range map[string]DomainPolicy{
		"":          Propagate,
		"propagate": Propagate,
		"clamp":     Clamp,
		"strict":    Strict,
	} {
		got, err := ParseDomainPolicy(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	_, err := ParseDomainPolicy("ignore")
	assert.Error(t, err)
}

func TestDomainPolicy_String(t *testing.T) {
	assert.Equal(t, "propagate", Propagate.String())
	assert.Equal(t, "clamp", Clamp.String())
	assert.Equal(t, "strict", Strict.String())
	assert.Equal(t, "policy(9)", DomainPolicy(9).String())
}
