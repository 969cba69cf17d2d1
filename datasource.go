// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ec262

import "sort"

// DataSource is a read-only, ordered mapping from opaque string keys
// to values. It is the input to a Job and lives for the duration of
// one foreman run.
type DataSource interface {
	// Keys returns every key in the source, in iteration order.
	Keys() []string
	// Get returns the value for key and whether it was present.
	Get(key string) (interface{}, bool)
	// Len returns the number of keys in the source.
	Len() int
}

// MapDataSource is a DataSource backed by an in-memory mapping that
// preserves insertion order, so that chunking is deterministic across
// repeated iterations of the same source (a requirement of the
// chunking-commutativity law).
type MapDataSource struct {
	keys   []string
	values map[string]interface{}
}

// NewDataSource builds a MapDataSource from the given pairs, in the
// order given.
func NewDataSource(pairs ...Pair) *MapDataSource {
	ds := &MapDataSource{
		keys:   make([]string, 0, len(pairs)),
		values: make(map[string]interface{}, len(pairs)),
	}
	for _, p := range pairs {
		if _, ok := ds.values[p.Key]; !ok {
			ds.keys = append(ds.keys, p.Key)
		}
		ds.values[p.Key] = p.Value
	}
	return ds
}

// NewGroupedDataSource wraps an already-grouped key -> []interface{}
// mapping (the output of the map-merge step) as a DataSource so it
// can be fed into a reduce Job through the same Chunker. Keys are
// sorted for determinism, since map output arrives via a vote that
// does not otherwise preserve input order.
func NewGroupedDataSource(grouped map[string][]interface{}) *MapDataSource {
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ds := &MapDataSource{keys: keys, values: make(map[string]interface{}, len(grouped))}
	for _, k := range keys {
		ds.values[k] = grouped[k]
	}
	return ds
}

func (m *MapDataSource) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *MapDataSource) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *MapDataSource) Len() int { return len(m.keys) }
