// register.go wires the estimators into the prog registry. The init() runs
// when any package imports prog/observer; the CLI imports it for side
// effects, test code uses a blank import.
package observer

import (
	"math/rand"

	"github.com/prognos-io/prognos/prog"
)

func init() {
	prog.RegisterObserver(UKFName, func(m prog.Model, cfg prog.ConfigMap, rng *rand.Rand) (prog.Observer, error) {
		return NewUKF(m, cfg, rng)
	})
	prog.RegisterObserver(PFName, func(m prog.Model, cfg prog.ConfigMap, rng *rand.Rand) (prog.Observer, error) {
		return NewParticleFilter(m, cfg, rng)
	})
}
