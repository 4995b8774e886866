package ribstats

import (
	"errors"
	"io"
	"net/netip"
	"slices"
)

type peerAcc struct {
	ip        netip.Addr
	asn       uint32
	v4        map[netip.Prefix]struct{}
	v6        map[netip.Prefix]struct{}
	connected map[uint32]struct{}
}

type pfxOrigin struct {
	prefix netip.Prefix
	asn    uint32
}

// Snapshot holds the accumulators for a single RIB dump. It is not safe for
// concurrent use; each dump gets its own Snapshot.
type Snapshot struct {
	peers   []*peerAcc
	peerIdx map[netip.Addr]uint32

	pfx2as map[pfxOrigin]uint64

	global *relationTable
	v4     *relationTable
	v6     *relationTable

	records uint64
}

// NewSnapshot returns empty accumulators anchored on tier1.
func NewSnapshot(tier1 Tier1Lists) *Snapshot {
	return &Snapshot{
		peerIdx: make(map[netip.Addr]uint32),
		pfx2as:  make(map[pfxOrigin]uint64),
		global:  newRelationTable(tier1.Global),
		v4:      newRelationTable(tier1.V4),
		v6:      newRelationTable(tier1.V6),
	}
}

// Records returns the number of records added so far.
func (s *Snapshot) Records() uint64 { return s.records }

func (s *Snapshot) peer(rec *Record) (uint32, *peerAcc) {
	if id, ok := s.peerIdx[rec.PeerIP]; ok {
		return id, s.peers[id]
	}
	// First record for a peer fixes its ASN; later values are ignored.
	p := &peerAcc{
		ip:        rec.PeerIP,
		asn:       rec.PeerASN,
		v4:        make(map[netip.Prefix]struct{}),
		v6:        make(map[netip.Prefix]struct{}),
		connected: make(map[uint32]struct{}),
	}
	id := uint32(len(s.peers))
	s.peers = append(s.peers, p)
	s.peerIdx[rec.PeerIP] = id
	return id, p
}

// Add folds one record into the accumulators.
func (s *Snapshot) Add(rec Record) {
	s.records++
	id, p := s.peer(&rec)
	valid := rec.Prefix.IsValid()
	isV4 := valid && rec.Prefix.Addr().Is4()

	if rec.ASPath != nil {
		path := DedupPath(rec.ASPath)
		if len(path) >= 2 {
			p.connected[path[1]] = struct{}{}
		}
		if len(path) > 0 && valid {
			s.pfx2as[pfxOrigin{prefix: rec.Prefix, asn: path[len(path)-1]}]++
		}
		s.global.observe(id, path)
		if valid {
			if isV4 {
				s.v4.observe(id, path)
			} else {
				s.v6.observe(id, path)
			}
		}
	}

	if !valid {
		return
	}
	if isV4 {
		p.v4[rec.Prefix] = struct{}{}
	} else {
		p.v6[rec.Prefix] = struct{}{}
	}
}

// Finalize converts the accumulated sets into counts and builds the documents.
func (s *Snapshot) Finalize(meta Meta) *Result {
	peers := make(map[netip.Addr]PeerStat, len(s.peers))
	for _, p := range s.peers {
		peers[p.ip] = PeerStat{
			IP:               p.ip,
			ASN:              p.asn,
			NumV4Pfxs:        uint64(len(p.v4)),
			NumV6Pfxs:        uint64(len(p.v6)),
			NumConnectedASNs: uint64(len(p.connected)),
		}
	}

	pfx2as := make([]Pfx2ASEntry, 0, len(s.pfx2as))
	for k, count := range s.pfx2as {
		pfx2as = append(pfx2as, Pfx2ASEntry{Prefix: k.prefix, ASN: k.asn, Count: count})
	}
	slices.SortFunc(pfx2as, ComparePfx2AS)

	return &Result{
		PeerStats: &PeerStatsDoc{Meta: meta, Peers: peers},
		Pfx2AS:    &Pfx2ASDoc{Meta: meta, Pfx2AS: pfx2as},
		AS2Rel:    &AS2RelDoc{Meta: meta, AS2Rel: s.global.entriesSorted()},
		AS2RelV4:  &AS2RelDoc{Meta: meta, AS2Rel: s.v4.entriesSorted()},
		AS2RelV6:  &AS2RelDoc{Meta: meta, AS2Rel: s.v6.entriesSorted()},
		Records:   s.records,
	}
}

// Aggregate consumes src to exhaustion and returns the snapshot documents.
// A source failure is returned as a *DecodeError and no documents are produced.
func Aggregate(src Source, tier1 Tier1Lists, meta Meta) (*Result, error) {
	s := NewSnapshot(tier1)
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Locator: meta.SourceURL, Err: err}
		}
		s.Add(rec)
	}
	return s.Finalize(meta), nil
}
