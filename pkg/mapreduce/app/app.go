// Package app resolves the user supplied map and reduce functions of a job.
package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

type KeyValue struct {
	Key   string
	Value int64
}

// Application is the user code of a job.
type Application interface {
	Map(line string) []KeyValue
	Reduce(key string, values []int64) int64
}

// Funcs adapts a pair of plain functions to Application.
type Funcs struct {
	MapFunc    func(line string) []KeyValue
	ReduceFunc func(key string, values []int64) int64
}

func (f Funcs) Map(line string) []KeyValue              { return f.MapFunc(line) }
func (f Funcs) Reduce(key string, values []int64) int64 { return f.ReduceFunc(key, values) }

var (
	mu       sync.RWMutex
	registry = map[string]Application{}
)

// Register makes a built-in application resolvable by name.
func Register(name string, a Application) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = a
}

// Resolver loads applications by code path and caches them.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]Application
}

func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]Application)}
}

// Resolve returns the application for codePath. Paths ending in .so are
// opened as Go plugins; anything else names a registered application by its
// base name without extension.
func (r *Resolver) Resolve(codePath string) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.cache[codePath]; ok {
		return a, nil
	}

	var (
		a   Application
		err error
	)
	if filepath.Ext(codePath) == ".so" {
		a, err = openPlugin(codePath)
	} else {
		a, err = lookup(Name(codePath))
	}
	if err != nil {
		return nil, err
	}
	r.cache[codePath] = a
	return a, nil
}

// Name is the registry name a code path resolves to.
func Name(codePath string) string {
	base := filepath.Base(codePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func lookup(name string) (Application, error) {
	mu.RLock()
	defer mu.RUnlock()
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no application named %q", name)
	}
	return a, nil
}
