package app

import (
	"fmt"
	"plugin"
)

// openPlugin loads a plugin built with -buildmode=plugin that exports
//
//	func Map(line string) []app.KeyValue
//	func Reduce(key string, values []int64) int64
func openPlugin(path string) (Application, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load plugin %v: %w", path, err)
	}

	xmapf, err := p.Lookup("Map")
	if err != nil {
		return nil, fmt.Errorf("cannot find Map in %v: %w", path, err)
	}
	mapf, ok := xmapf.(func(string) []KeyValue)
	if !ok {
		return nil, fmt.Errorf("symbol Map in %v has type %T", path, xmapf)
	}

	xreducef, err := p.Lookup("Reduce")
	if err != nil {
		return nil, fmt.Errorf("cannot find Reduce in %v: %w", path, err)
	}
	reducef, ok := xreducef.(func(string, []int64) int64)
	if !ok {
		return nil, fmt.Errorf("symbol Reduce in %v has type %T", path, xreducef)
	}

	return Funcs{MapFunc: mapf, ReduceFunc: reducef}, nil
}
