// Package ribstats aggregates a decoded RIB dump into per-peer statistics,
// prefix-to-origin counts and AS relationship observations.
package ribstats

import (
	"fmt"
	"net/netip"
)

// Record is a single route announced by a collector peer in a RIB dump.
type Record struct {
	PeerIP  netip.Addr
	PeerASN uint32
	Prefix  netip.Prefix
	// ASPath is ordered from the collector-adjacent hop to the origin.
	// Nil when the route carries no usable AS path.
	ASPath []uint32
}

// Source yields the records of one RIB dump in file order.
// Next returns io.EOF once the dump is exhausted; any other error is terminal.
type Source interface {
	Next() (Record, error)
}

// DecodeError reports a failure of the underlying record source.
type DecodeError struct {
	Locator string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ribstats: decoding %s: %v", e.Locator, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
