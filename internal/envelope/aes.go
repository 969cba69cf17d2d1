// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
)

// Encrypt AES-128-CBC-encrypts a canonically-padded plaintext (see
// Encode) under key, using a fixed all-zero IV.
//
// A fixed IV is a deliberate, documented choice (see DESIGN.md): it
// mirrors the original implementation's implicit zero IV, and it is
// what makes the replication-idempotence law of spec.md §8 possible —
// two workers computing the same plaintext under the same key must
// produce byte-identical ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("envelope: plaintext length %d is not a multiple of the block size", len(plaintext))
	}
	iv := make([]byte, aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

// Decrypt reverses Encrypt.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("envelope: ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	iv := make([]byte, aes.BlockSize)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// Fingerprint returns the SHA-256 digest of a canonicalized plaintext
// result, used by workers to let the foreman vote without decrypting
// every replica (spec.md §4.6, Open Question (i)).
func Fingerprint(canonicalPlaintext []byte) [32]byte {
	return sha256.Sum256(canonicalPlaintext)
}
