package prog

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Configuration keys understood by the Prognoser. Component-specific keys
// (Battery.*, Observer.*, Predictor.loadEst, ...) are documented by the
// component that reads them.
const (
	ModelKey            = "model"
	ObserverKey         = "observer"
	PredictorKey        = "predictor"
	EventKey            = "Model.event"
	NumSamplesKey       = "Predictor.numSamples"
	HorizonKey          = "Predictor.horizon"
	PredictedOutputsKey = "Model.predictedOutputs"
	InputsKey           = "inputs"
	OutputsKey          = "outputs"
	SeedKey             = "seed"
)

// DefaultSeed seeds the pipeline RNG when the config does not set one.
const DefaultSeed = 42

// TickOutcome classifies what a Tick did.
type TickOutcome int

const (
	// TickFailed: a bus read or pipeline stage returned an error.
	TickFailed TickOutcome = iota
	// TickInitialized: first tick; the state was reconstructed and the
	// observer seeded, with no estimation or prediction yet.
	TickInitialized
	// TickSkipped: the bus time did not advance past the previous tick.
	TickSkipped
	// TickPredicted: estimation and prediction both ran.
	TickPredicted
)

func (o TickOutcome) String() string {
	switch o {
	case TickFailed:
		return "failed"
	case TickInitialized:
		return "initialized"
	case TickSkipped:
		return "skipped"
	case TickPredicted:
		return "predicted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Prognoser runs the model-based prognostics pipeline: on each tick it reads
// the configured signals from the bus, steps the observer, and triggers a
// prediction cycle into its Results store. The first tick only reconstructs
// the initial state; ticks whose bus time does not advance are skipped
// silently.
//
// A Prognoser is not safe for concurrent Ticks; drive it from one goroutine.
// The Results store it exposes is safe for concurrent readers.
type Prognoser struct {
	model     Model
	observer  Observer
	predictor Predictor
	results   *Results
	bus       Bus

	inputs  []string
	outputs []string
	u       []float64
	z       []float64

	initialized bool
	origin      time.Time
	lastTime    float64
}

// NewPrognoser builds a complete pipeline from configuration. Every
// construction failure (missing keys, unknown component names, dimension
// mismatches, unparseable values) aborts with an error before any component
// runs.
func NewPrognoser(cfg ConfigMap, bus Bus) (*Prognoser, error) {
	if err := cfg.Require(ModelKey, ObserverKey, PredictorKey, EventKey, NumSamplesKey,
		HorizonKey, PredictedOutputsKey, InputsKey, OutputsKey); err != nil {
		return nil, err
	}

	modelName, err := cfg.String(ModelKey)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("creating model %q", modelName)
	model, err := NewModel(modelName, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating model: %w", err)
	}

	seed := int64(DefaultSeed)
	if cfg.Has(SeedKey) {
		v, err := cfg.Int(SeedKey)
		if err != nil {
			return nil, err
		}
		seed = int64(v)
	}
	rng := NewPartitionedRNG(NewRunKey(seed))

	observerName, err := cfg.String(ObserverKey)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("creating observer %q", observerName)
	observer, err := NewObserver(observerName, model, cfg, rng.ForSubsystem(SubsystemObserver))
	if err != nil {
		return nil, fmt.Errorf("creating observer: %w", err)
	}

	predictorName, err := cfg.String(PredictorKey)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("creating predictor %q", predictorName)
	predictor, err := NewPredictor(predictorName, model, cfg, rng.ForSubsystem(SubsystemPredictor))
	if err != nil {
		return nil, fmt.Errorf("creating predictor: %w", err)
	}

	inputs, err := cfg.Strings(InputsKey)
	if err != nil {
		return nil, err
	}
	outputs, err := cfg.Strings(OutputsKey)
	if err != nil {
		return nil, err
	}
	if len(inputs) != model.NumInputs() {
		return nil, fmt.Errorf("config lists %d input signals, model %q has %d inputs", len(inputs), modelName, model.NumInputs())
	}
	if len(outputs) != model.NumOutputs() {
		return nil, fmt.Errorf("config lists %d output signals, model %q has %d outputs", len(outputs), modelName, model.NumOutputs())
	}

	events, err := cfg.Strings(EventKey)
	if err != nil {
		return nil, err
	}
	predicted, err := cfg.Strings(PredictedOutputsKey)
	if err != nil {
		return nil, err
	}
	if len(predicted) != model.NumPredictedOutputs() {
		return nil, fmt.Errorf("config lists %d predicted outputs, model %q has %d", len(predicted), modelName, model.NumPredictedOutputs())
	}
	numSamples, err := cfg.Int(NumSamplesKey)
	if err != nil {
		return nil, err
	}
	horizon, err := cfg.Int(HorizonKey)
	if err != nil {
		return nil, err
	}
	results, err := NewResults(events, predicted, numSamples, horizon)
	if err != nil {
		return nil, fmt.Errorf("allocating results: %w", err)
	}

	return &Prognoser{
		model:     model,
		observer:  observer,
		predictor: predictor,
		results:   results,
		bus:       bus,
		inputs:    inputs,
		outputs:   outputs,
		u:         make([]float64, model.NumInputs()),
		z:         make([]float64, model.NumOutputs()),
	}, nil
}

// Tick processes one sample of every configured signal. The tick's time is
// the bus timestamp of the first output signal; all pipeline times are
// seconds relative to the first tick's timestamp.
func (p *Prognoser) Tick() (TickOutcome, error) {
	var at time.Time
	for i, name := range p.outputs {
		d, err := p.bus.Read(name)
		if err != nil {
			return TickFailed, fmt.Errorf("reading output %q: %w", name, err)
		}
		if i == 0 {
			at = d.Time
		}
		p.z[i] = d.Value
	}
	for i, name := range p.inputs {
		d, err := p.bus.Read(name)
		if err != nil {
			return TickFailed, fmt.Errorf("reading input %q: %w", name, err)
		}
		p.u[i] = d.Value
	}

	if !p.initialized {
		p.origin = at
		x0 := p.model.Initialize(p.u, p.z)
		p.observer.Initialize(0, x0, p.u)
		p.lastTime = 0
		p.initialized = true
		logrus.Debugf("pipeline initialized, time origin %s", at.Format(time.RFC3339Nano))
		return TickInitialized, nil
	}

	newT := at.Sub(p.origin).Seconds()
	if newT <= p.lastTime {
		logrus.Debugf("skipping tick: time did not advance (t=%.3fs, last=%.3fs)", newT, p.lastTime)
		return TickSkipped, nil
	}

	if err := p.observer.Step(newT, p.u, p.z); err != nil {
		return TickFailed, fmt.Errorf("observer step at t=%.3fs: %w", newT, err)
	}
	state := p.observer.StateEstimate()
	if err := p.predictor.Predict(newT, state, p.results); err != nil {
		return TickFailed, fmt.Errorf("prediction at t=%.3fs: %w", newT, err)
	}
	p.lastTime = newT
	return TickPredicted, nil
}

// Results returns the store prediction cycles are committed to.
func (p *Prognoser) Results() *Results { return p.results }

// Model returns the pipeline's model.
func (p *Prognoser) Model() Model { return p.model }

// Initialized reports whether the first tick has run.
func (p *Prognoser) Initialized() bool { return p.initialized }

// LastTime returns the pipeline-relative time of the last processed tick.
func (p *Prognoser) LastTime() float64 { return p.lastTime }
