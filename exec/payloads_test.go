// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	ec262 "github.com/ec262/mapreduce"
)

func TestGroupPairsGroupsValuesByKey(t *testing.T) {
	out := groupPairs(ec262.Chunk{
		{Key: "Humpty", Value: 1},
		{Key: "Dumpty", Value: 1},
		{Key: "Humpty", Value: 1},
	})
	assert.Equal(t, []interface{}{1, 1}, out["Humpty"])
	assert.Equal(t, []interface{}{1}, out["Dumpty"])
	assert.Len(t, out, 2)
}

func TestGroupPairsEmptyChunk(t *testing.T) {
	out := groupPairs(nil)
	assert.Empty(t, out)
}
