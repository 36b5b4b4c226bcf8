package prog

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// registry is the named-constructor table behind the model, observer and
// predictor extension points. Sub-packages register in init(); a duplicate
// name is a programming error and panics.
type registry[C any] struct {
	mu    sync.Mutex
	kind  string
	ctors map[string]C
}

func newRegistry[C any](kind string) *registry[C] {
	return &registry[C]{kind: kind, ctors: make(map[string]C)}
}

func (r *registry[C]) add(name string, ctor C) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ctors[name]; dup {
		panic(fmt.Sprintf("duplicate %s registration: %q", r.kind, name))
	}
	r.ctors[name] = ctor
}

func (r *registry[C]) get(name string) (C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctor, ok := r.ctors[name]
	if !ok {
		var zero C
		return zero, fmt.Errorf("unknown %s %q, registered: %v", r.kind, name, r.namesLocked())
	}
	return ctor, nil
}

func (r *registry[C]) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

func (r *registry[C]) namesLocked() []string {
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelCtor builds a model from configuration.
type ModelCtor func(cfg ConfigMap) (Model, error)

// ObserverCtor builds an observer bound to a model. rng is the observer's
// deterministic random stream; estimators that need no randomness ignore it.
type ObserverCtor func(m Model, cfg ConfigMap, rng *rand.Rand) (Observer, error)

// PredictorCtor builds a predictor bound to a model. rng seeds the
// per-realization streams.
type PredictorCtor func(m Model, cfg ConfigMap, rng *rand.Rand) (Predictor, error)

var (
	modelRegistry     = newRegistry[ModelCtor]("model")
	observerRegistry  = newRegistry[ObserverCtor]("observer")
	predictorRegistry = newRegistry[PredictorCtor]("predictor")
)

// RegisterModel makes a model constructor available under name. It panics if
// the name is already taken.
func RegisterModel(name string, ctor ModelCtor) { modelRegistry.add(name, ctor) }

// RegisterObserver makes an observer constructor available under name. It
// panics if the name is already taken.
func RegisterObserver(name string, ctor ObserverCtor) { observerRegistry.add(name, ctor) }

// RegisterPredictor makes a predictor constructor available under name. It
// panics if the name is already taken.
func RegisterPredictor(name string, ctor PredictorCtor) { predictorRegistry.add(name, ctor) }

// NewModel builds the named registered model.
func NewModel(name string, cfg ConfigMap) (Model, error) {
	ctor, err := modelRegistry.get(name)
	if err != nil {
		return nil, err
	}
	return ctor(cfg)
}

// NewObserver builds the named registered observer.
func NewObserver(name string, m Model, cfg ConfigMap, rng *rand.Rand) (Observer, error) {
	ctor, err := observerRegistry.get(name)
	if err != nil {
		return nil, err
	}
	return ctor(m, cfg, rng)
}

// NewPredictor builds the named registered predictor.
func NewPredictor(name string, m Model, cfg ConfigMap, rng *rand.Rand) (Predictor, error) {
	ctor, err := predictorRegistry.get(name)
	if err != nil {
		return nil, err
	}
	return ctor(m, cfg, rng)
}

// RegisteredModels returns the sorted names of available models.
func RegisteredModels() []string { return modelRegistry.names() }

// RegisteredObservers returns the sorted names of available observers.
func RegisteredObservers() []string { return observerRegistry.names() }

// RegisteredPredictors returns the sorted names of available predictors.
func RegisteredPredictors() []string { return predictorRegistry.names() }
