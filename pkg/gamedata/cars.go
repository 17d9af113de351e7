package gamedata

import (
	"fmt"
	"sync"
)

// CarModel describes a vehicle the sim can report via its loadout
// signature.
type CarModel struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

// CarRegistry resolves sim loadout signatures to car models.
type CarRegistry interface {
	Get(signature string) (CarModel, error)
	Register(signature string, model CarModel)
	Len() int
}

// NewCarRegistry creates a registry populated from a signature table,
// typically the backend's car model payload.
func NewCarRegistry(models map[string]CarModel) CarRegistry {
	r := &carRegistry{
		models: make(map[string]CarModel, len(models)),
	}

	for sig, m := range models {
		r.Register(sig, m)
	}

	return r
}

type carRegistry struct {
	mu     sync.RWMutex
	models map[string]CarModel
}

// Ensure interface compliance.
var _ CarRegistry = (*carRegistry)(nil)

// Get returns the car model for the given signature.
func (r *carRegistry) Get(signature string) (CarModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.models[signature]
	if !ok {
		return CarModel{}, fmt.Errorf("unknown car signature: %s", ShortSig(signature))
	}

	return model, nil
}

// Register adds a model to the registry.
func (r *carRegistry) Register(signature string, model CarModel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[signature] = model
}

// Len returns the number of registered models.
func (r *carRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// ShortSig truncates a signature for log and error output.
func ShortSig(sig string) string {
	if len(sig) > 8 {
		return sig[:8] + "..."
	}

	return sig
}
