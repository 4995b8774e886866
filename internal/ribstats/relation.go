package ribstats

import (
	"cmp"
	"slices"
)

// RelationCode classifies an AS pair.
type RelationCode uint8

const (
	// RelAdjacent marks two ASes seen next to each other in a path; no direction is implied.
	RelAdjacent RelationCode = 0
	// RelProviderCustomer marks asn_a as the inferred provider of asn_b.
	RelProviderCustomer RelationCode = 1
)

type relKey struct {
	a, b uint32
	rel  RelationCode
}

type relValue struct {
	messages uint64
	peers    peerSet
}

// peerSet is a sorted set of dense peer indexes. Most relationships are seen
// by a handful of peers, so a sorted slice stays far smaller than a map.
type peerSet []uint32

func (s *peerSet) add(id uint32) {
	i, found := slices.BinarySearch(*s, id)
	if !found {
		*s = slices.Insert(*s, i, id)
	}
}

// relationTable accumulates adjacency and provider/customer observations
// anchored on one tier-1 list.
type relationTable struct {
	tier1   asnSet
	entries map[relKey]*relValue
}

func newRelationTable(tier1 []uint32) *relationTable {
	return &relationTable{
		tier1:   newASNSet(tier1),
		entries: make(map[relKey]*relValue),
	}
}

func (t *relationTable) bump(k relKey, peer uint32) {
	v, ok := t.entries[k]
	if !ok {
		v = &relValue{}
		t.entries[k] = v
	}
	v.messages++
	v.peers.add(peer)
}

// observe records one deduplicated path (collector first, origin last) seen by peer.
func (t *relationTable) observe(peer uint32, path []uint32) {
	for i := 0; i+1 < len(path); i++ {
		t.bump(relKey{a: path[i], b: path[i+1], rel: RelAdjacent}, peer)
	}

	// Walk from the origin towards the collector; k is the distance of the
	// first tier-1 AS from the origin.
	n := len(path)
	k := -1
	for i := n - 1; i >= 0; i-- {
		if t.tier1.has(path[i]) {
			k = n - 1 - i
			break
		}
	}
	if k < 0 || k >= n-1 {
		return
	}
	for i := 0; i < k; i++ {
		customer := path[n-1-i]
		provider := path[n-2-i]
		t.bump(relKey{a: provider, b: customer, rel: RelProviderCustomer}, peer)
	}
}

func (t *relationTable) entriesSorted() []AS2RelEntry {
	out := make([]AS2RelEntry, 0, len(t.entries))
	for k, v := range t.entries {
		out = append(out, AS2RelEntry{
			ASNA:         k.a,
			ASNB:         k.b,
			Relation:     k.rel,
			MessageCount: v.messages,
			PeersCount:   uint64(len(v.peers)),
		})
	}
	slices.SortFunc(out, compareAS2Rel)
	return out
}

func compareAS2Rel(x, y AS2RelEntry) int {
	if c := cmp.Compare(x.ASNA, y.ASNA); c != 0 {
		return c
	}
	if c := cmp.Compare(x.ASNB, y.ASNB); c != 0 {
		return c
	}
	return cmp.Compare(x.Relation, y.Relation)
}
