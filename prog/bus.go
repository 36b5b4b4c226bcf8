package prog

import (
	"fmt"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Datum is one timestamped scalar sample on the data bus.
type Datum struct {
	Value float64
	Time  time.Time
}

// Bus provides read access to named signals. The pipeline reads the latest
// sample of each configured input and output signal on every tick; the
// timestamp of the first output signal carries the tick's time.
type Bus interface {
	Read(name string) (Datum, error)
}

// SignalBus is an in-memory Bus: ingest sources (MQTT bridge, CSV replay,
// simulation drivers) write latest-value samples from any goroutine and the
// pipeline reads them from its tick loop.
type SignalBus struct {
	signals cmap.ConcurrentMap[string, Datum]
}

// NewSignalBus returns an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{signals: cmap.New[Datum]()}
}

// Set stores the latest sample for a signal.
func (b *SignalBus) Set(name string, value float64, at time.Time) {
	b.signals.Set(name, Datum{Value: value, Time: at})
}

// Read returns the latest sample of the named signal. A signal that has never
// been written is an error; the pipeline treats that tick as failed rather
// than fabricating a zero sample.
func (b *SignalBus) Read(name string) (Datum, error) {
	d, ok := b.signals.Get(name)
	if !ok {
		return Datum{}, fmt.Errorf("signal %q not present on bus", name)
	}
	return d, nil
}

// Names returns the signals currently present, in no particular order.
func (b *SignalBus) Names() []string {
	return b.signals.Keys()
}
