package ribstats

import (
	"cmp"
	"net/netip"
)

// Data type names, also used as output directory and file name prefixes.
const (
	DataTypePeerStats = "peer-stats"
	DataTypePfx2AS    = "pfx2as"
	DataTypeAS2Rel    = "as2rel"
	DataTypeAS2RelV4  = "as2rel-v4"
	DataTypeAS2RelV6  = "as2rel-v6"
)

// DataTypes lists every document produced for one snapshot.
var DataTypes = []string{
	DataTypePeerStats,
	DataTypePfx2AS,
	DataTypeAS2Rel,
	DataTypeAS2RelV4,
	DataTypeAS2RelV6,
}

// Meta identifies the snapshot a document was derived from.
type Meta struct {
	Project   string `json:"project"`
	Collector string `json:"collector"`
	SourceURL string `json:"source_url"`
}

// PeerStat summarises one collector peer within a snapshot.
type PeerStat struct {
	IP               netip.Addr `json:"ip"`
	ASN              uint32     `json:"asn"`
	NumV4Pfxs        uint64     `json:"num_v4_pfxs"`
	NumV6Pfxs        uint64     `json:"num_v6_pfxs"`
	NumConnectedASNs uint64     `json:"num_connected_asns"`
}

// PeerStatsDoc is the peer-stats document, keyed by peer IP.
type PeerStatsDoc struct {
	Meta
	Peers map[netip.Addr]PeerStat `json:"peers"`
}

// Pfx2ASEntry counts the peers that saw prefix originated by ASN.
type Pfx2ASEntry struct {
	Prefix netip.Prefix `json:"prefix"`
	ASN    uint32       `json:"asn"`
	Count  uint64       `json:"count"`
}

// Pfx2ASDoc is the pfx2as document of one snapshot.
type Pfx2ASDoc struct {
	Meta
	Pfx2AS []Pfx2ASEntry `json:"pfx2as"`
}

// AS2RelEntry is one observed or inferred AS relationship.
type AS2RelEntry struct {
	ASNA         uint32       `json:"asn_a"`
	ASNB         uint32       `json:"asn_b"`
	Relation     RelationCode `json:"relation_code"`
	MessageCount uint64       `json:"message_count"`
	PeersCount   uint64       `json:"peers_count"`
}

// AS2RelDoc is an as2rel document (global, v4 or v6) of one snapshot.
type AS2RelDoc struct {
	Meta
	AS2Rel []AS2RelEntry `json:"as2rel"`
}

// Result bundles the finalized documents of one snapshot.
type Result struct {
	PeerStats *PeerStatsDoc
	Pfx2AS    *Pfx2ASDoc
	AS2Rel    *AS2RelDoc
	AS2RelV4  *AS2RelDoc
	AS2RelV6  *AS2RelDoc

	// Records is the number of route records consumed.
	Records uint64
}

// Documents returns the result keyed by data type.
func (r *Result) Documents() map[string]any {
	return map[string]any{
		DataTypePeerStats: r.PeerStats,
		DataTypePfx2AS:    r.Pfx2AS,
		DataTypeAS2Rel:    r.AS2Rel,
		DataTypeAS2RelV4:  r.AS2RelV4,
		DataTypeAS2RelV6:  r.AS2RelV6,
	}
}

// ComparePfx2AS orders entries by prefix, then origin AS.
func ComparePfx2AS(x, y Pfx2ASEntry) int {
	if c := x.Prefix.Addr().Compare(y.Prefix.Addr()); c != 0 {
		return c
	}
	if c := cmp.Compare(x.Prefix.Bits(), y.Prefix.Bits()); c != 0 {
		return c
	}
	return cmp.Compare(x.ASN, y.ASN)
}

// CompareAS2Rel orders entries by asn_a, asn_b, then relation code.
func CompareAS2Rel(x, y AS2RelEntry) int { return compareAS2Rel(x, y) }
