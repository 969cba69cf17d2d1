// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ec262 "github.com/ec262/mapreduce"
)

const wordCountMapFn = `function(key, value, emit) {
	var words = value.split(" ");
	for (var i = 0; i < words.length; i++) {
		if (words[i].length > 0) { emit(words[i], 1); }
	}
}`

const sumReduceFn = `function(key, values) {
	var sum = 0;
	for (var i = 0; i < values.length; i++) { sum += values[i]; }
	return [key, sum];
}`

func TestRunMapFnEmitsPerWord(t *testing.T) {
	sb := NewSandbox()
	chunk := ec262.Chunk{{Key: "0", Value: "Humpty Dumpty sat"}}
	out, err := sb.RunMapFn(context.Background(), wordCountMapFn, chunk)
	require.NoError(t, err)

	grouped := groupPairs(out)
	for _, word := range []string{"Humpty", "Dumpty", "sat"} {
		values, ok := grouped[word].([]interface{})
		require.True(t, ok, "missing emitted word %q", word)
		require.Len(t, values, 1)
		assert.EqualValues(t, 1, values[0])
	}
}

func TestRunReduceFnSums(t *testing.T) {
	sb := NewSandbox()
	out, err := sb.RunReduceFn(context.Background(), sumReduceFn, "Humpty", []interface{}{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, "Humpty", out.Key)
	assert.EqualValues(t, 3, out.Value)
}

func TestSandboxRejectsNonFunctionSource(t *testing.T) {
	sb := NewSandbox()
	_, err := sb.RunMapFn(context.Background(), `1 + 1`, ec262.Chunk{{Key: "0", Value: "x"}})
	require.Error(t, err)
	var violation *SandboxViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "mapfn", violation.Function)
}

// TestSandboxBlocksDisallowedGlobal is spec.md §8 scenario 5: shipped
// code calling a disallowed equivalent (here, require) must fail
// rather than escape the sandbox.
func TestSandboxBlocksDisallowedGlobal(t *testing.T) {
	sb := NewSandbox()
	source := `function(key, value, emit) { require('fs'); }`
	_, err := sb.RunMapFn(context.Background(), source, ec262.Chunk{{Key: "0", Value: "x"}})
	require.Error(t, err)
	var violation *SandboxViolationError
	require.ErrorAs(t, err, &violation)
}

// TestSandboxBlocksEval covers spec.md §4.2's removal list directly:
// eval is named first among the equivalents that must be removed, and
// must fail the same way the other disallowed globals do.
func TestSandboxBlocksEval(t *testing.T) {
	sb := NewSandbox()
	source := `function(key, value, emit) { eval('1 + 1'); }`
	_, err := sb.RunMapFn(context.Background(), source, ec262.Chunk{{Key: "0", Value: "x"}})
	require.Error(t, err)
	var violation *SandboxViolationError
	require.ErrorAs(t, err, &violation)
}

func TestSandboxInterruptsOnContextDeadline(t *testing.T) {
	sb := NewSandbox()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	source := `function(key, value, emit) { while (true) {} }`
	_, err := sb.RunMapFn(ctx, source, ec262.Chunk{{Key: "0", Value: "x"}})
	require.Error(t, err)
	var violation *SandboxViolationError
	require.ErrorAs(t, err, &violation)
}

func TestRunReduceFnRejectsNonPairReturn(t *testing.T) {
	sb := NewSandbox()
	_, err := sb.RunReduceFn(context.Background(), `function(key, values) { return 42; }`, "k", nil)
	require.Error(t, err)
}
