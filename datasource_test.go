// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ec262

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataSourcePreservesInsertionOrder(t *testing.T) {
	ds := NewDataSource(
		Pair{Key: "b", Value: 1},
		Pair{Key: "a", Value: 2},
		Pair{Key: "c", Value: 3},
	)
	assert.Equal(t, []string{"b", "a", "c"}, ds.Keys())
	assert.Equal(t, 3, ds.Len())
}

func TestNewDataSourceDedupesLastWriteWins(t *testing.T) {
	ds := NewDataSource(
		Pair{Key: "a", Value: 1},
		Pair{Key: "a", Value: 2},
	)
	require.Equal(t, 1, ds.Len())
	v, ok := ds.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestDataSourceGetMissingKey(t *testing.T) {
	ds := NewDataSource()
	_, ok := ds.Get("nope")
	assert.False(t, ok)
}

func TestNewGroupedDataSourceSortsKeys(t *testing.T) {
	ds := NewGroupedDataSource(map[string][]interface{}{
		"Dumpty": {1, 1},
		"Humpty": {1, 1, 1},
		"all":    {1},
	})
	assert.Equal(t, []string{"Dumpty", "Humpty", "all"}, ds.Keys())
	v, ok := ds.Get("Humpty")
	require.True(t, ok)
	assert.Equal(t, []interface{}{1, 1, 1}, v)
}

// KeysReturnsACopy guards against callers mutating a DataSource's
// internal key order through the slice Keys returns.
func TestKeysReturnsACopy(t *testing.T) {
	ds := NewDataSource(Pair{Key: "a", Value: 1})
	keys := ds.Keys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"a"}, ds.Keys())
}
