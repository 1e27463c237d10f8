package parallel

import (
	"fmt"
	"math"
	"sort"
)

// Message is one direction of a channel
type Message struct {
	Tg       uint16   // time group of the local elements
	Lt       bool     // the local time group is finer than the remote one
	Faces    []uint16 // local face of each communicating element face
	Elements []int    // owning local element of each face
	Tag      int
}

// Channel connects the elements of one local time group with the elements
// of one remote time group on a neighbouring rank.
type Channel struct {
	Rank       int
	Send, Recv Message
}

// ChannelSpec is the caller-provided description of a channel
type ChannelSpec struct {
	Rank              int
	LocalTg, RemoteTg uint16
	SendFaces         []uint16
	SendElements      []int
	RecvFaces         []uint16
	RecvElements      []int
}

// CommStruct describes all channels of a rank, grouped by local time group
type CommStruct struct {
	Channels []ChannelSpec
}

// ParseCommStruct reads the flat layout
//
//	[nTgs, {nCh, {remoteTg, rank, nFaces}·nCh}·nTgs]
//
// where the channels of local time group tg follow its channel count, and
// the face and element lists are consumed in channel order.
func ParseCommStruct(raw []int, sendFa []uint16, sendEl []int, recvFa []uint16, recvEl []int) (CommStruct, error) {
	var cs CommStruct
	pos := 0
	next := func() (int, error) {
		if pos >= len(raw) {
			return 0, fmt.Errorf("communication structure truncated at entry %d", pos)
		}
		v := raw[pos]
		pos++
		if v < 0 {
			return 0, fmt.Errorf("negative entry %d at %d", v, pos-1)
		}
		return v, nil
	}

	nTgs, err := next()
	if err != nil {
		return cs, err
	}
	if nTgs > math.MaxUint16 {
		return cs, fmt.Errorf("%d time groups exceed %d", nTgs, math.MaxUint16)
	}
	off := 0
	for tg := 0; tg < nTgs; tg++ {
		nCh, err := next()
		if err != nil {
			return cs, err
		}
		for ch := 0; ch < nCh; ch++ {
			var vals [3]int
			for i := range vals {
				if vals[i], err = next(); err != nil {
					return cs, err
				}
			}
			if vals[0] > math.MaxUint16 {
				return cs, fmt.Errorf("channel %d of time group %d: remote time group %d exceeds %d",
					ch, tg, vals[0], math.MaxUint16)
			}
			nFa := vals[2]
			if off+nFa > len(sendFa) || off+nFa > len(sendEl) ||
				off+nFa > len(recvFa) || off+nFa > len(recvEl) {
				return cs, fmt.Errorf("channel %d of time group %d needs faces [%d,%d), index lists too short",
					ch, tg, off, off+nFa)
			}
			cs.Channels = append(cs.Channels, ChannelSpec{
				Rank:         vals[1],
				LocalTg:      uint16(tg),
				RemoteTg:     uint16(vals[0]),
				SendFaces:    sendFa[off : off+nFa],
				SendElements: sendEl[off : off+nFa],
				RecvFaces:    recvFa[off : off+nFa],
				RecvElements: recvEl[off : off+nFa],
			})
			off += nFa
		}
	}
	if pos != len(raw) {
		return cs, fmt.Errorf("%d trailing entries in communication structure", len(raw)-pos)
	}
	return cs, nil
}

// Flatten writes cs in the layout read by ParseCommStruct. Channels are
// ordered by local time group, keeping their relative order; every LocalTg
// must be below nTgs.
func (cs CommStruct) Flatten(nTgs uint16) (raw []int, sendFa []uint16, sendEl []int, recvFa []uint16, recvEl []int) {
	byTg := make([][]ChannelSpec, nTgs)
	for _, ch := range cs.Channels {
		byTg[ch.LocalTg] = append(byTg[ch.LocalTg], ch)
	}
	raw = append(raw, int(nTgs))
	for _, chs := range byTg {
		raw = append(raw, len(chs))
		for _, ch := range chs {
			raw = append(raw, int(ch.RemoteTg), ch.Rank, len(ch.SendFaces))
			sendFa = append(sendFa, ch.SendFaces...)
			sendEl = append(sendEl, ch.SendElements...)
			recvFa = append(recvFa, ch.RecvFaces...)
			recvEl = append(recvEl, ch.RecvElements...)
		}
	}
	return
}

// Sort orders the channels by local time group, remote time group and rank
func (cs CommStruct) Sort() {
	sort.SliceStable(cs.Channels, func(i, j int) bool {
		a, b := cs.Channels[i], cs.Channels[j]
		if a.LocalTg != b.LocalTg {
			return a.LocalTg < b.LocalTg
		}
		if a.RemoteTg != b.RemoteTg {
			return a.RemoteTg < b.RemoteTg
		}
		return a.Rank < b.Rank
	})
}

// NFaces returns the number of communicating faces over all channels
func (cs CommStruct) NFaces() int {
	n := 0
	for _, ch := range cs.Channels {
		n += len(ch.SendFaces)
	}
	return n
}

// SendTag returns the tag of messages sent from localTg to remoteTg
func SendTag(nTgs, localTg, remoteTg uint16) int {
	return int(localTg)*int(nTgs) + int(remoteTg)
}

// RecvTag returns the tag of messages received by localTg from remoteTg
func RecvTag(nTgs, localTg, remoteTg uint16) int {
	return int(remoteTg)*int(nTgs) + int(localTg)
}

// matches is the time group predicate shared by both directions: the
// message belongs to tg, and less-than messages are only selected if lt
// was requested.
func (m *Message) matches(lt bool, tg uint16) bool {
	return m.Tg == tg && (!m.Lt || lt)
}

// CheckSendTgLt reports whether the send message of ch matches tg and lt
func CheckSendTgLt(ch *Channel, lt bool, tg uint16) bool {
	return ch.Send.matches(lt, tg)
}

// CheckRecvTgLt reports whether the receive message of ch matches tg and lt
func CheckRecvTgLt(ch *Channel, lt bool, tg uint16) bool {
	return ch.Recv.matches(lt, tg)
}
