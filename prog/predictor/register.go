// register.go wires the predictor into the prog registry. The init() runs
// when any package imports prog/predictor; the CLI imports it for side
// effects, test code uses a blank import.
package predictor

import (
	"math/rand"

	"github.com/prognos-io/prognos/prog"
)

func init() {
	prog.RegisterPredictor(MCName, func(m prog.Model, cfg prog.ConfigMap, rng *rand.Rand) (prog.Predictor, error) {
		return NewMonteCarlo(m, cfg, rng)
	})
}
