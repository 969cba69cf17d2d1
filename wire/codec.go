// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/gob"
)

// Encode gob-encodes v into a payload suitable for WriteFrame. gob is
// the portable, self-describing binary serialization this
// reimplementation standardizes on (spec.md's Design Notes §9,
// "Serialization"), replacing the original's runtime-specific pickle
// format.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode gob-decodes payload into v, which must be a pointer.
func Decode(payload []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}
