package ribstats

import (
	"errors"
	"io"
	"math/rand"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	recs []Record
	err  error
	pos  int
}

func (s *sliceSource) Next() (Record, error) {
	if s.pos >= len(s.recs) {
		if s.err != nil {
			return Record{}, s.err
		}
		return Record{}, io.EOF
	}
	r := s.recs[s.pos]
	s.pos++
	return r, nil
}

func rec(peer string, asn uint32, prefix string, path ...uint32) Record {
	r := Record{
		PeerIP:  netip.MustParseAddr(peer),
		PeerASN: asn,
		Prefix:  netip.MustParsePrefix(prefix),
	}
	if path != nil {
		r.ASPath = path
	}
	return r
}

var testMeta = Meta{Project: "route-views", Collector: "route-views.sg", SourceURL: "rib.20220808.1400.bz2"}

func aggregate(t *testing.T, tier1 Tier1Lists, recs ...Record) *Result {
	t.Helper()
	res, err := Aggregate(&sliceSource{recs: recs}, tier1, testMeta)
	require.NoError(t, err)
	return res
}

func findRel(entries []AS2RelEntry, a, b uint32, rel RelationCode) (AS2RelEntry, bool) {
	for _, e := range entries {
		if e.ASNA == a && e.ASNB == b && e.Relation == rel {
			return e, true
		}
	}
	return AS2RelEntry{}, false
}

func TestAggregate_TwoPeersEndToEnd(t *testing.T) {
	tier1 := Tier1Lists{Global: []uint32{3356}, V4: []uint32{3356}, V6: []uint32{3356}}
	res := aggregate(t, tier1,
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 3356, 200, 100),
		rec("192.0.2.2", 65002, "10.0.0.0/24", 65002, 3356, 200, 100),
	)

	require.Len(t, res.PeerStats.Peers, 2)
	assert.Equal(t, uint64(2), res.Records)

	pc, ok := findRel(res.AS2Rel.AS2Rel, 200, 100, RelProviderCustomer)
	require.True(t, ok)
	assert.Equal(t, uint64(2), pc.MessageCount)
	assert.Equal(t, uint64(2), pc.PeersCount)

	_, ok = findRel(res.AS2Rel.AS2Rel, 3356, 200, RelProviderCustomer)
	assert.True(t, ok)

	adj, ok := findRel(res.AS2Rel.AS2Rel, 3356, 200, RelAdjacent)
	require.True(t, ok)
	assert.Equal(t, uint64(2), adj.MessageCount)

	// Nothing is inferred between the anchor and the collector peers.
	for _, e := range res.AS2Rel.AS2Rel {
		if e.Relation == RelProviderCustomer {
			assert.NotContains(t, []uint32{65001, 65002}, e.ASNA)
			assert.NotContains(t, []uint32{65001, 65002}, e.ASNB)
		}
	}

	// v4 table mirrors the global one for an all-v4 input, v6 stays empty.
	assert.Equal(t, res.AS2Rel.AS2Rel, res.AS2RelV4.AS2Rel)
	assert.Empty(t, res.AS2RelV6.AS2Rel)

	require.Len(t, res.Pfx2AS.Pfx2AS, 1)
	assert.Equal(t, Pfx2ASEntry{Prefix: netip.MustParsePrefix("10.0.0.0/24"), ASN: 100, Count: 2}, res.Pfx2AS.Pfx2AS[0])
}

func TestAggregate_PeerStats(t *testing.T) {
	res := aggregate(t, DefaultTier1(),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 65001, 64500, 64501),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 64502, 64501),
		rec("192.0.2.1", 65001, "10.0.1.0/24", 65001, 64500),
		rec("192.0.2.1", 65001, "2001:db8::/32", 65001, 64500, 64503),
		rec("2001:db8::1", 65009, "2001:db8:1::/48"),
	)

	p := res.PeerStats.Peers[netip.MustParseAddr("192.0.2.1")]
	assert.Equal(t, uint32(65001), p.ASN)
	assert.Equal(t, uint64(2), p.NumV4Pfxs)
	assert.Equal(t, uint64(1), p.NumV6Pfxs)
	// Second hops after dedup: 64500, 64502.
	assert.Equal(t, uint64(2), p.NumConnectedASNs)

	q := res.PeerStats.Peers[netip.MustParseAddr("2001:db8::1")]
	assert.Equal(t, uint32(65009), q.ASN)
	assert.Equal(t, uint64(0), q.NumV4Pfxs)
	assert.Equal(t, uint64(1), q.NumV6Pfxs)
	assert.Equal(t, uint64(0), q.NumConnectedASNs)
}

func TestAggregate_FirstASNWins(t *testing.T) {
	res := aggregate(t, DefaultTier1(),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 64500),
		rec("192.0.2.1", 65999, "10.0.1.0/24", 65999, 64500),
	)
	p := res.PeerStats.Peers[netip.MustParseAddr("192.0.2.1")]
	assert.Equal(t, uint32(65001), p.ASN)
	assert.Equal(t, uint64(2), p.NumV4Pfxs)
}

func TestAggregate_AbsentPathOnlyTouchesPeerBookkeeping(t *testing.T) {
	res := aggregate(t, DefaultTier1(),
		rec("192.0.2.1", 65001, "10.0.0.0/24"),
	)
	assert.Empty(t, res.Pfx2AS.Pfx2AS)
	assert.Empty(t, res.AS2Rel.AS2Rel)
	assert.Equal(t, uint64(1), res.PeerStats.Peers[netip.MustParseAddr("192.0.2.1")].NumV4Pfxs)
}

func TestAggregate_OriginOnlyPath(t *testing.T) {
	res := aggregate(t, DefaultTier1(),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 65001),
	)
	require.Len(t, res.Pfx2AS.Pfx2AS, 1)
	assert.Equal(t, uint32(65001), res.Pfx2AS.Pfx2AS[0].ASN)
	assert.Empty(t, res.AS2Rel.AS2Rel)
	assert.Equal(t, uint64(0), res.PeerStats.Peers[netip.MustParseAddr("192.0.2.1")].NumConnectedASNs)
}

func TestAggregate_FamilyTablesUseOwnTier1Lists(t *testing.T) {
	// 6939 anchors the global and v6 tables but not v4.
	res := aggregate(t, DefaultTier1(),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 6939, 64500, 64501),
		rec("192.0.2.1", 65001, "2001:db8::/32", 65001, 6939, 64500, 64501),
	)

	pc, ok := findRel(res.AS2Rel.AS2Rel, 64500, 64501, RelProviderCustomer)
	require.True(t, ok)
	assert.Equal(t, uint64(2), pc.MessageCount)
	assert.Equal(t, uint64(1), pc.PeersCount)

	_, ok = findRel(res.AS2RelV6.AS2Rel, 64500, 64501, RelProviderCustomer)
	assert.True(t, ok)

	for _, e := range res.AS2RelV4.AS2Rel {
		assert.Equal(t, RelAdjacent, e.Relation)
	}
}

func TestAggregate_NoTier1NoProviderCustomer(t *testing.T) {
	res := aggregate(t, DefaultTier1(),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 64500, 64501, 64502),
		rec("192.0.2.2", 65002, "2001:db8::/32", 65002, 64510, 64511),
	)
	for _, doc := range []*AS2RelDoc{res.AS2Rel, res.AS2RelV4, res.AS2RelV6} {
		for _, e := range doc.AS2Rel {
			assert.Equal(t, RelAdjacent, e.Relation)
		}
	}
}

func TestAggregate_OrderIndependentCounts(t *testing.T) {
	recs := []Record{
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 3356, 64500, 64501),
		rec("192.0.2.1", 65001, "10.0.1.0/24", 65001, 174, 64500),
		rec("192.0.2.2", 65002, "10.0.0.0/24", 65002, 1299, 64500, 64501),
		rec("192.0.2.2", 65002, "2001:db8::/32", 65002, 6939, 64502, 64502, 64503),
		rec("192.0.2.3", 65003, "10.0.2.0/24", 65003, 64500, 64501),
		rec("192.0.2.3", 65003, "10.0.2.0/24"),
	}
	want := aggregate(t, DefaultTier1(), recs...)

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]Record(nil), recs...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := aggregate(t, DefaultTier1(), shuffled...)
		assert.Equal(t, want.Pfx2AS, got.Pfx2AS)
		assert.Equal(t, want.AS2Rel, got.AS2Rel)
		assert.Equal(t, want.AS2RelV4, got.AS2RelV4)
		assert.Equal(t, want.AS2RelV6, got.AS2RelV6)
		assert.Equal(t, want.PeerStats, got.PeerStats)
	}
}

func TestAggregate_PrefixCountsBoundedByDistinctPrefixes(t *testing.T) {
	recs := []Record{
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 1),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 2),
		rec("192.0.2.1", 65001, "10.0.1.0/24"),
		rec("192.0.2.1", 65001, "2001:db8::/32", 65001),
		rec("192.0.2.1", 65001, "2001:db8::/32", 65001),
	}
	res := aggregate(t, DefaultTier1(), recs...)

	distinct := map[netip.Prefix]struct{}{}
	for _, r := range recs {
		distinct[r.Prefix] = struct{}{}
	}
	p := res.PeerStats.Peers[netip.MustParseAddr("192.0.2.1")]
	assert.LessOrEqual(t, p.NumV4Pfxs+p.NumV6Pfxs, uint64(len(distinct)))
	assert.Equal(t, uint64(3), p.NumV4Pfxs+p.NumV6Pfxs)
}

func TestAggregate_Pfx2ASCountsEveryPeer(t *testing.T) {
	res := aggregate(t, DefaultTier1(),
		rec("192.0.2.1", 65001, "10.0.0.0/24", 65001, 64500),
		rec("192.0.2.2", 65002, "10.0.0.0/24", 65002, 64500),
		rec("192.0.2.2", 65002, "10.0.0.0/24", 65002, 64501),
	)
	require.Len(t, res.Pfx2AS.Pfx2AS, 2)
	assert.Equal(t, uint64(2), res.Pfx2AS.Pfx2AS[0].Count)
	assert.Equal(t, uint32(64500), res.Pfx2AS.Pfx2AS[0].ASN)
	assert.Equal(t, uint64(1), res.Pfx2AS.Pfx2AS[1].Count)
}

func TestAggregate_SourceErrorIsDecodeError(t *testing.T) {
	boom := errors.New("truncated MRT record")
	src := &sliceSource{
		recs: []Record{rec("192.0.2.1", 65001, "10.0.0.0/24", 65001)},
		err:  boom,
	}
	res, err := Aggregate(src, DefaultTier1(), testMeta)
	require.Error(t, err)
	assert.Nil(t, res)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, testMeta.SourceURL, de.Locator)
	assert.ErrorIs(t, err, boom)
}

func TestAggregate_DocumentsCarryMeta(t *testing.T) {
	res := aggregate(t, DefaultTier1())
	for dt, doc := range res.Documents() {
		switch d := doc.(type) {
		case *PeerStatsDoc:
			assert.Equal(t, testMeta, d.Meta, dt)
		case *Pfx2ASDoc:
			assert.Equal(t, testMeta, d.Meta, dt)
		case *AS2RelDoc:
			assert.Equal(t, testMeta, d.Meta, dt)
		default:
			t.Fatalf("unexpected document type %T for %s", doc, dt)
		}
	}
	assert.Len(t, res.Documents(), len(DataTypes))
}

func TestDefaultTier1_SentinelOnlyInV4(t *testing.T) {
	l := DefaultTier1()
	assert.Contains(t, l.Global, uint32(6939))
	assert.Contains(t, l.V6, uint32(6939))
	assert.NotContains(t, l.V4, uint32(6939))
	assert.Contains(t, l.V4, uint32(0))
	assert.Len(t, l.V4, 17)
}
