// Package mrt decodes TABLE_DUMP_V2 RIB dumps into ribstats records.
package mrt

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/osrg/gobgp/v3/pkg/packet/mrt"

	"github.com/route-beacon/peer-stats/internal/ribstats"
)

type peer struct {
	ip  netip.Addr
	asn uint32
}

// Reader yields one ribstats.Record per RIB entry of an MRT stream.
type Reader struct {
	r       io.Reader
	hdr     [mrt.MRT_COMMON_HEADER_LEN]byte
	body    []byte
	peers   []peer
	pending []ribstats.Record
	err     error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next record. io.EOF marks a clean end of stream; any other
// error is terminal and is returned on every subsequent call.
func (r *Reader) Next() (ribstats.Record, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return ribstats.Record{}, r.err
		}
		if err := r.readMessage(); err != nil {
			r.err = err
			return ribstats.Record{}, err
		}
	}
	rec := r.pending[0]
	r.pending = r.pending[1:]
	return rec, nil
}

func (r *Reader) readMessage() error {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("reading MRT header: %w", err)
	}
	var h mrt.MRTHeader
	if err := h.DecodeFromBytes(r.hdr[:]); err != nil {
		return fmt.Errorf("decoding MRT header: %w", err)
	}
	if cap(r.body) < int(h.Len) {
		r.body = make([]byte, h.Len)
	}
	body := r.body[:h.Len]
	if _, err := io.ReadFull(r.r, body); err != nil {
		return fmt.Errorf("reading MRT body (%d bytes): %w", h.Len, noEOF(err))
	}

	if h.Type != mrt.TABLE_DUMPv2 {
		return nil
	}
	switch mrt.MRTSubTypeTableDumpv2(h.SubType) {
	case mrt.PEER_INDEX_TABLE,
		mrt.RIB_IPV4_UNICAST, mrt.RIB_IPV6_UNICAST,
		mrt.RIB_IPV4_UNICAST_ADDPATH, mrt.RIB_IPV6_UNICAST_ADDPATH:
	default:
		return nil
	}

	msg, err := mrt.ParseMRTBody(&h, body)
	if err != nil {
		return fmt.Errorf("parsing MRT body: %w", err)
	}
	switch b := msg.Body.(type) {
	case *mrt.PeerIndexTable:
		r.peers = r.peers[:0]
		for _, p := range b.Peers {
			r.peers = append(r.peers, peer{ip: addrFromIP(p.IpAddress), asn: p.AS})
		}
	case *mrt.Rib:
		return r.expandRib(b)
	}
	return nil
}

func (r *Reader) expandRib(rib *mrt.Rib) error {
	prefix, err := netip.ParsePrefix(rib.Prefix.String())
	if err != nil {
		return fmt.Errorf("RIB prefix %q: %w", rib.Prefix.String(), err)
	}
	for _, e := range rib.Entries {
		if int(e.PeerIndex) >= len(r.peers) {
			return fmt.Errorf("RIB entry references peer %d, peer table has %d", e.PeerIndex, len(r.peers))
		}
		p := r.peers[e.PeerIndex]
		r.pending = append(r.pending, ribstats.Record{
			PeerIP:  p.ip,
			PeerASN: p.asn,
			Prefix:  prefix,
			ASPath:  asPath(e.PathAttributes),
		})
	}
	return nil
}

// asPath flattens the AS_PATH attribute. Paths carrying AS_SET or
// confederation segments have no single ordering and are reported as absent.
func asPath(attrs []bgp.PathAttributeInterface) []uint32 {
	for _, a := range attrs {
		ap, ok := a.(*bgp.PathAttributeAsPath)
		if !ok {
			continue
		}
		path := make([]uint32, 0, 8)
		for _, seg := range ap.Value {
			if seg.GetType() != bgp.BGP_ASPATH_ATTR_TYPE_SEQ {
				return nil
			}
			path = append(path, seg.GetAS()...)
		}
		return path
	}
	return nil
}

func addrFromIP(ip net.IP) netip.Addr {
	a, _ := netip.AddrFromSlice(ip)
	return a.Unmap()
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
