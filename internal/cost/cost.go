// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

// Package cost computes estimated USD cost for a candidate/request pair.
// Estimates feed budget filtering during selection and are echoed in
// dispatch results for observability; they are never persisted here.
package cost

import "github.com/faro-dev/faro/internal/catalog"

// Estimate returns the estimated USD cost of running a request of the given
// size against the candidate. Token-billed candidates pay per input and
// output unit; flat-billed candidates pay a fixed amount per operation
// regardless of size.
func Estimate(c catalog.Candidate, inputSize, outputSize int) float64 {
	if c.Billing == catalog.BillingFlat {
		return c.CostPerOperation
	}
	return c.CostPerUnitIn*float64(inputSize) + c.CostPerUnitOut*float64(outputSize)
}
