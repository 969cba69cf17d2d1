// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package envelope implements the canonical key-sorted JSON-list
// encoding and AES-128-CBC envelope of spec.md §6, used both to
// fingerprint a replica's plaintext result for voting and to encrypt
// it for transport under the discovery-brokered per-task key.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Encode canonicalizes data as a JSON list of [key, value] pairs
// sorted ascending by key, then pads with ASCII spaces to a multiple
// of 16 bytes (the AES block size). This is the exact transformation
// spec.md §8 doctests: Encode({"b":1,"a":2}) == `[["a", 2], ["b", 1]]`
// plus trailing padding.
func Encode(data map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteByte('[')
		if err := writeJSONValue(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteString(", ")
		if err := writeJSONValue(&buf, data[k]); err != nil {
			return nil, err
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')

	out := buf.Bytes()
	if pad := (16 - len(out)%16) % 16; pad > 0 {
		out = append(out, bytes.Repeat([]byte(" "), pad)...)
	}
	return out, nil
}

// Decode reverses Encode, ignoring the trailing space padding.
func Decode(data []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimRight(data, " ")
	var pairs []json.RawMessage
	if err := json.Unmarshal(trimmed, &pairs); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	out := make(map[string]interface{}, len(pairs))
	for _, raw := range pairs {
		var pair [2]json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("envelope: decode pair: %w", err)
		}
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return nil, fmt.Errorf("envelope: decode key: %w", err)
		}
		var value interface{}
		if err := json.Unmarshal(pair[1], &value); err != nil {
			return nil, fmt.Errorf("envelope: decode value: %w", err)
		}
		out[key] = value
	}
	return out, nil
}

// writeJSONValue writes v's canonical JSON form. json.Marshal already
// produces a minimal, deterministic encoding for the scalar/slice/map
// shapes that cross the sandbox boundary (string, float64, bool, nil,
// []interface{}, map[string]interface{}); Go's encoding/json sorts
// object keys itself, so nested maps are canonical for free.
func writeJSONValue(buf *bytes.Buffer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
