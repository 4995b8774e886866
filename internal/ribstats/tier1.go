package ribstats

// Tier1Lists holds the AS numbers used as inference anchors, one list per
// relationship table. The lists are configuration data and are never mutated.
type Tier1Lists struct {
	Global []uint32
	V4     []uint32
	V6     []uint32
}

var defaultTier1 = []uint32{
	6762, 12956, 2914, 3356, 6453, 1239, 701, 6461, 3257, 1299, 3491, 7018, 3320, 5511, 6830, 174,
}

// DefaultTier1 returns the reference anchor lists. The v4 list carries the
// sentinel AS 0 in place of 6939, which only anchors the global and v6 tables.
func DefaultTier1() Tier1Lists {
	with := func(last uint32) []uint32 {
		l := make([]uint32, 0, len(defaultTier1)+1)
		l = append(l, defaultTier1...)
		return append(l, last)
	}
	return Tier1Lists{
		Global: with(6939),
		V4:     with(0),
		V6:     with(6939),
	}
}

type asnSet map[uint32]struct{}

func newASNSet(asns []uint32) asnSet {
	s := make(asnSet, len(asns))
	for _, a := range asns {
		s[a] = struct{}{}
	}
	return s
}

func (s asnSet) has(asn uint32) bool {
	_, ok := s[asn]
	return ok
}
