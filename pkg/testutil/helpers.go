// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/channelmix/budget-allocator/internal/solver"
)

// FindChannel finds a channel allocation by name in the result.
// Returns a pointer to the channel result if found, nil otherwise.
func FindChannel(result *solver.Result, name string) *solver.ChannelResult {
	if result == nil {
		return nil
	}
	for i := range result.Channels {
		if result.Channels[i].Channel == name {
			return &result.Channels[i]
		}
	}
	return nil
}

// TotalSpend sums the per-channel spends in the result, independently of the
// solver's own bookkeeping.
func TotalSpend(result *solver.Result) float64 {
	total := 0.0
	for _, ch := range result.Channels {
		total += ch.Spend
	}
	return total
}
