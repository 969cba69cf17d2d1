// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ec262

// Chunker produces a lazy sequence of Chunks from a DataSource,
// `Rows` pairs at a time (default 1). Iteration order follows the
// data source's own Keys() order. Once exhausted it sets Done and
// keeps returning ok=false; construct a fresh Chunker to restart.
type Chunker struct {
	source DataSource
	rows   int
	keys   []string
	pos    int
	done   bool
}

// NewChunker returns a Chunker over source yielding rows pairs per
// Chunk. rows <= 0 is treated as 1.
func NewChunker(source DataSource, rows int) *Chunker {
	if rows <= 0 {
		rows = 1
	}
	return &Chunker{source: source, rows: rows, keys: source.Keys()}
}

// SetRows changes the number of pairs yielded per Chunk for
// subsequent calls to Next.
func (c *Chunker) SetRows(rows int) {
	if rows <= 0 {
		rows = 1
	}
	c.rows = rows
}

// Done reports whether the chunker has yielded every pair in its
// source.
func (c *Chunker) Done() bool { return c.done }

// Next returns the next Chunk of up to Rows pairs, or ok=false once
// the source is exhausted.
func (c *Chunker) Next() (chunk Chunk, ok bool) {
	if c.pos >= len(c.keys) {
		c.done = true
		return nil, false
	}
	end := c.pos + c.rows
	if end > len(c.keys) {
		end = len(c.keys)
	}
	chunk = make(Chunk, 0, end-c.pos)
	for _, k := range c.keys[c.pos:end] {
		v, _ := c.source.Get(k)
		chunk = append(chunk, Pair{Key: k, Value: v})
	}
	c.pos = end
	if c.pos >= len(c.keys) {
		c.done = true
	}
	return chunk, true
}

// All drains the chunker into a slice of every Chunk it will ever
// produce. Useful for building a Job's task set eagerly.
func (c *Chunker) All() []Chunk {
	var chunks []Chunk
	for {
		chunk, ok := c.Next()
		if !ok {
			break
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
