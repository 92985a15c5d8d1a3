package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxseg/pkg/audio"
	"github.com/MrWong99/voxseg/pkg/provider/vad"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: component not registered")

// Registry maps component names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	vad     map[string]func(VADConfig) (vad.Engine, error)
	capture map[string]func(CaptureConfig) (audio.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:     make(map[string]func(VADConfig) (vad.Engine, error)),
		capture: make(map[string]func(CaptureConfig) (audio.Source, error)),
	}
}

// RegisterVAD registers a classifier engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name string, factory func(VADConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterCapture registers an audio source factory under name.
func (r *Registry) RegisterCapture(name string, factory func(CaptureConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// CreateVAD instantiates the engine registered under cfg.Name.
// Returns [ErrNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateCapture opens the source registered under cfg.Source.
func (r *Registry) CreateCapture(cfg CaptureConfig) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.capture[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrNotRegistered, cfg.Source)
	}
	return factory(cfg)
}

// Names returns the registered names for kind ("vad" or "capture"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "vad":
		for n := range r.vad {
			names = append(names, n)
		}
	case "capture":
		for n := range r.capture {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
