// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"

	ec262 "github.com/ec262/mapreduce"
	"github.com/ec262/mapreduce/discovery"
	"github.com/ec262/mapreduce/internal/envelope"
	"github.com/grailbio/base/log"
)

// Reconcile implements the replica-disagreement law of spec.md §4.6:
// a task's R replicas are trusted only insofar as a strict majority
// of them computed the identical fingerprint. It is the merge
// callback a Task hands to Complete (see task.go).
//
// On a majority, Reconcile consumes the task's discovery key to
// decrypt the winning ciphertext and returns the decoded result. On
// no majority it invalidates the task for a credit refund and returns
// a *NoMajorityError; the caller's job fails.
func Reconcile(ctx context.Context, disco *discovery.Client, taskID string) func([]ec262.ReplicaResult) (map[string]interface{}, error) {
	return func(results []ec262.ReplicaResult) (map[string]interface{}, error) {
		tally := make(map[[32]byte]int, len(results))
		ciphertexts := make(map[[32]byte][]byte, len(results))
		for _, r := range results {
			tally[r.Fingerprint]++
			ciphertexts[r.Fingerprint] = r.Ciphertext
		}

		var winner [32]byte
		var winnerCount int
		for fp, count := range tally {
			if count > winnerCount {
				winner, winnerCount = fp, count
			}
		}

		majority := len(results)/2 + 1
		if winnerCount < majority {
			if _, err := disco.Invalidate(ctx, taskID); err != nil {
				log.Error.Printf("exec: invalidate %s after no-majority vote: %v", taskID, err)
			}
			return nil, &NoMajorityError{TaskID: taskID, R: len(results)}
		}

		key, err := disco.ConsumeKey(ctx, taskID)
		if err != nil {
			return nil, err
		}
		plaintext, err := envelope.Decrypt(key, ciphertexts[winner])
		if err != nil {
			return nil, err
		}
		return envelope.Decode(plaintext)
	}
}
