// register.go wires the battery model into the prog registry. The init()
// runs when any package imports prog/battery; the CLI imports it for side
// effects, test code in package prog uses a blank import.
package battery

import "github.com/prognos-io/prognos/prog"

func init() {
	prog.RegisterModel(Name, func(cfg prog.ConfigMap) (prog.Model, error) {
		return New(cfg)
	})
}
