// Package netglue supplies the contract-only network glue (component
// J): the packet-in-a-page message format the input/output helper
// environments exchange with the core network server over IPC, and
// the DMA ring descriptor shapes the NIC driver itself would use.
// Grounded on original_source/net/input.c and net/output.c for the
// Nsipc/NSREQ contract, and original_source/kern/e100.c for the ring
// descriptor layout (e100_cbl_alloc, e100_rfa_alloc). No real NIC is
// driven here -- spec.md's Non-goals exclude networking -- but the
// types exist so sys_xmit_frame/sys_rx have a concrete wire format to
// validate against: every Ring.Push/Pop packs and unpacks a real
// descriptor through util.Readn/Writen/Min (the teacher's helpers),
// not just the packet bytes.
package netglue

import "github.com/mcorley/jos/util"

// MaxPktLen bounds one Ethernet frame, matching
// original_source/net/input.c's on-stack `data[1518]` buffer.
const MaxPktLen = 1518

// NsReq is the IPC message tag the core network server dispatches on,
// named after original_source/net/ns.h's NSREQ_* constants.
type NsReq uint32

const (
	NsReqInput NsReq = iota
	NsReqOutput
)

// Pkt is the payload of one Nsipc message: a length-prefixed frame,
// matching struct jif_pkt's jp_len/jp_data fields.
type Pkt struct {
	Len  int
	Data [MaxPktLen]byte
}

// Bytes returns the valid prefix of Data.
func (p *Pkt) Bytes() []byte { return p.Data[:p.Len] }

// cblDesc and rfaDesc are the transmit and receive DMA descriptor
// layouts original_source/kern/e100.c's e100_cbl_alloc/e100_rfa_alloc
// build. Both views share the same 16-byte slot (a real CBL and RFA
// entry are sized alike on the e100), so a Ring's descriptor array
// packs through cblDesc on enqueue and unpacks through rfaDesc on
// dequeue, with util.Readn/Writen doing the field-level packing
// exactly as the real driver would for the card.
type cblDesc [16]byte
type rfaDesc [16]byte

const (
	cblOffStatus  = 0
	cblOffCmd     = 2
	cblOffLink    = 4
	cblOffTbdAddr = 8
	cblOffCount   = 12
)

func (d *cblDesc) SetCommand(cmd uint16) { util.Writen(d[:], 2, cblOffCmd, int(cmd)) }
func (d *cblDesc) Command() uint16       { return uint16(util.Readn(d[:], 2, cblOffCmd)) }
func (d *cblDesc) SetCount(n uint32)     { util.Writen(d[:], 4, cblOffCount, int(n)) }
func (d *cblDesc) Count() uint32         { return uint32(util.Readn(d[:], 4, cblOffCount)) }

const (
	rfaOffStatus = 0
	rfaOffLink   = 4
	rfaOffCount  = 12
)

func (d *rfaDesc) Status() uint16     { return uint16(util.Readn(d[:], 2, rfaOffStatus)) }
func (d *rfaDesc) SetStatus(s uint16) { util.Writen(d[:], 2, rfaOffStatus, int(s)) }
func (d *rfaDesc) Count() uint32      { return uint32(util.Readn(d[:], 4, rfaOffCount)) }

// cblCmdXmit is the e100 CB_TRANSMIT command bit, set on every
// descriptor a producer hands to the ring.
const cblCmdXmit uint16 = 1 << 2

// rfaStatusOk is the e100 RFA completion-ok bit, set on a descriptor
// once its packet has been handed back to a consumer.
const rfaStatusOk uint16 = 1 << 13

// Ring is a fixed-capacity circular buffer of completed or pending
// packets backed by a parallel array of DMA descriptors, standing in
// for the card's CBL/RFA descriptor ring; the transmit ring and
// receive ring in a real driver are two instances of this same shape,
// one written through as cblDesc, the other read back through as
// rfaDesc.
type Ring struct {
	slots []Pkt
	descs [][16]byte
	head  int
	tail  int
	count int
}

func NewRing(capacity int) *Ring {
	return &Ring{slots: make([]Pkt, capacity), descs: make([][16]byte, capacity)}
}

// Push enqueues a packet, reporting CblFull-style exhaustion via ok.
// The slot's descriptor is packed as a transmit (CBL) descriptor:
// the command bit marking it queued for the card, and the byte count
// the card would DMA out.
func (r *Ring) Push(data []byte) bool {
	if r.count == len(r.slots) {
		return false
	}
	p := &r.slots[r.tail]
	n := util.Min(len(data), MaxPktLen)
	p.Len = copy(p.Data[:n], data)

	d := (*cblDesc)(&r.descs[r.tail])
	d.SetCommand(cblCmdXmit)
	d.SetCount(uint32(p.Len))

	r.tail = (r.tail + 1) % len(r.slots)
	r.count++
	return true
}

// Pop dequeues the oldest packet, if any, first reading its
// descriptor back as a receive (RFA) completion: the byte count the
// card reported and a completion-ok status stamped for any consumer
// that inspects the descriptor after the packet itself.
func (r *Ring) Pop() (Pkt, bool) {
	if r.count == 0 {
		return Pkt{}, false
	}
	p := r.slots[r.head]

	d := (*rfaDesc)(&r.descs[r.head])
	n := int(d.Count())
	d.SetStatus(rfaStatusOk)
	if n != p.Len {
		panic("netglue: ring descriptor count disagrees with packet length")
	}

	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return p, true
}
