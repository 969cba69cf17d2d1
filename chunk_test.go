// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ec262

import (
	"fmt"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordSource() *MapDataSource {
	return NewDataSource(
		Pair{Key: "0", Value: "Humpty Dumpty sat on a wall"},
		Pair{Key: "1", Value: "Humpty Dumpty had a great fall"},
		Pair{Key: "2", Value: "All the King's horses and all the King's men"},
		Pair{Key: "3", Value: "Couldn't put Humpty together again"},
	)
}

func TestChunkerDefaultRowsIsOne(t *testing.T) {
	c := NewChunker(wordSource(), 0)
	chunks := c.All()
	require.Len(t, chunks, 4)
	for _, ch := range chunks {
		assert.Len(t, ch, 1)
	}
	assert.True(t, c.Done())
}

func TestChunkerRowsGroupsMultiplePairs(t *testing.T) {
	c := NewChunker(wordSource(), 3)
	chunks := c.All()
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 1)
}

func TestChunkerSetRowsAffectsSubsequentNext(t *testing.T) {
	c := NewChunker(wordSource(), 1)
	first, ok := c.Next()
	require.True(t, ok)
	assert.Len(t, first, 1)

	c.SetRows(2)
	second, ok := c.Next()
	require.True(t, ok)
	assert.Len(t, second, 2)
}

// TestChunkingCommutativity exercises spec.md §8's chunking
// commutativity law: the same data chunked at size 1 and size N, then
// run through the same map+merge pipeline, must produce the same
// final result regardless of how it was carved into tasks.
func TestChunkingCommutativity(t *testing.T) {
	source := wordSource()

	wordCount := func(rows int) map[string]interface{} {
		chunker := NewChunker(source, rows)
		counts := map[string]int{}
		for _, chunk := range chunker.All() {
			for _, pair := range chunk {
				for _, word := range splitWords(pair.Value.(string)) {
					counts[word]++
				}
			}
		}
		out := make(map[string]interface{}, len(counts))
		for k, v := range counts {
			out[k] = v
		}
		return out
	}

	assert.Equal(t, wordCount(1), wordCount(2))
	assert.Equal(t, wordCount(1), wordCount(100))
}

// TestChunkingCommutativityFuzzed generalizes TestChunkingCommutativity
// over randomly generated data sources, rather than one fixed nursery
// rhyme, so the law is checked against shapes of data a hand-written
// table wouldn't think to try (empty values, repeated words, odd pair
// counts).
func TestChunkingCommutativityFuzzed(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 40)
	for seed := 0; seed < 20; seed++ {
		var words []string
		f.Fuzz(&words)

		pairs := make([]Pair, len(words))
		for i, w := range words {
			pairs[i] = Pair{Key: fmt.Sprintf("%d", i), Value: w}
		}
		source := NewDataSource(pairs...)

		wordCount := func(rows int) map[string]interface{} {
			chunker := NewChunker(source, rows)
			counts := map[string]int{}
			for _, chunk := range chunker.All() {
				for _, pair := range chunk {
					counts[pair.Value.(string)]++
				}
			}
			out := make(map[string]interface{}, len(counts))
			for k, v := range counts {
				out[k] = v
			}
			return out
		}

		want := wordCount(1)
		for _, rows := range []int{2, 3, 7, len(words) + 1} {
			assert.Equal(t, want, wordCount(rows), "seed %d, rows %d", seed, rows)
		}
	}
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	for _, r := range s {
		if r == ' ' {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}
