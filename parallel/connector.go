package parallel

import (
	"fmt"
	"sort"
)

// Connector derives the channels of every rank from the global face
// connectivity of a partitioned mesh with time groups.
type Connector struct {
	// Mesh dimensions
	NumRanks int
	K        int // Total elements
	NFaces   int // Faces per element
	NTgs     uint16

	// Input connectivity; a face connected to its own element is a boundary
	EToE  [][]int
	EToF  [][]int
	EToP  []int    // Element → rank
	EToTg []uint16 // Element → time group

	// Rank mappings
	ElemsPerRank      []int
	GlobalToLocalElem []map[int]int // [rank][globalElem] → localElem
	LocalToGlobalElem [][]int       // [rank][localElem] → globalElem
}

// NewConnector creates a connector from mesh connectivity
func NewConnector(nFaces int, EToE, EToF [][]int, EToP []int, EToTg []uint16) (*Connector, error) {
	K := len(EToE)
	if K == 0 || nFaces <= 0 {
		return nil, fmt.Errorf("invalid dimensions: K=%d, nFaces=%d", K, nFaces)
	}
	if len(EToF) != K || len(EToP) != K || len(EToTg) != K {
		return nil, fmt.Errorf("connectivity lengths EToF=%d, EToP=%d, EToTg=%d do not match K=%d",
			len(EToF), len(EToP), len(EToTg), K)
	}

	c := &Connector{K: K, NFaces: nFaces, EToE: EToE, EToF: EToF, EToP: EToP, EToTg: EToTg}
	for e := 0; e < K; e++ {
		if len(EToE[e]) != nFaces || len(EToF[e]) != nFaces {
			return nil, fmt.Errorf("element %d has %d/%d face neighbours, want %d",
				e, len(EToE[e]), len(EToF[e]), nFaces)
		}
		if EToP[e] < 0 {
			return nil, fmt.Errorf("element %d has negative rank %d", e, EToP[e])
		}
		if EToP[e]+1 > c.NumRanks {
			c.NumRanks = EToP[e] + 1
		}
		if EToTg[e]+1 > c.NTgs {
			c.NTgs = EToTg[e] + 1
		}
		for f, n := range EToE[e] {
			if n < 0 || n >= K {
				return nil, fmt.Errorf("element %d face %d: neighbour %d out of range", e, f, n)
			}
		}
	}
	c.buildRankMappings()
	return c, nil
}

// buildRankMappings creates bidirectional mappings between global and local element numbering
func (c *Connector) buildRankMappings() {
	c.ElemsPerRank = make([]int, c.NumRanks)
	for _, p := range c.EToP {
		c.ElemsPerRank[p]++
	}

	c.GlobalToLocalElem = make([]map[int]int, c.NumRanks)
	c.LocalToGlobalElem = make([][]int, c.NumRanks)
	for p := 0; p < c.NumRanks; p++ {
		c.GlobalToLocalElem[p] = make(map[int]int)
		c.LocalToGlobalElem[p] = make([]int, 0, c.ElemsPerRank[p])
	}

	for globalElem := 0; globalElem < c.K; globalElem++ {
		rank := c.EToP[globalElem]
		localElem := len(c.LocalToGlobalElem[rank])

		c.GlobalToLocalElem[rank][globalElem] = localElem
		c.LocalToGlobalElem[rank] = append(c.LocalToGlobalElem[rank], globalElem)
	}
}

type channelKey struct {
	rank              int
	localTg, remoteTg uint16
}

// facePair is a communicating face seen from the local element
type facePair struct {
	el, fa       int // global local-side element and face
	nbEl, nbFace int // global remote-side element and face
}

// CommStruct builds the channels of rank. Send lists are ordered by the
// sending face and receive lists by the remote face, so both ends of a
// channel enumerate the shared faces in the same order.
func (c *Connector) CommStruct(rank int) CommStruct {
	var cs CommStruct
	if rank < 0 || rank >= c.NumRanks {
		return cs
	}

	pairs := make(map[channelKey][]facePair)
	for _, g := range c.LocalToGlobalElem[rank] {
		for f := 0; f < c.NFaces; f++ {
			n := c.EToE[g][f]
			if n == g || c.EToP[n] == rank {
				continue
			}
			key := channelKey{rank: c.EToP[n], localTg: c.EToTg[g], remoteTg: c.EToTg[n]}
			pairs[key] = append(pairs[key], facePair{el: g, fa: f, nbEl: n, nbFace: c.EToF[g][f]})
		}
	}

	local := c.GlobalToLocalElem[rank]
	for key, fps := range pairs {
		spec := ChannelSpec{Rank: key.rank, LocalTg: key.localTg, RemoteTg: key.remoteTg}

		sort.Slice(fps, func(i, j int) bool { return less(fps[i].el, fps[i].fa, fps[j].el, fps[j].fa) })
		for _, fp := range fps {
			spec.SendElements = append(spec.SendElements, local[fp.el])
			spec.SendFaces = append(spec.SendFaces, uint16(fp.fa))
		}

		sort.Slice(fps, func(i, j int) bool { return less(fps[i].nbEl, fps[i].nbFace, fps[j].nbEl, fps[j].nbFace) })
		for _, fp := range fps {
			spec.RecvElements = append(spec.RecvElements, local[fp.el])
			spec.RecvFaces = append(spec.RecvFaces, uint16(fp.fa))
		}
		cs.Channels = append(cs.Channels, spec)
	}
	cs.Sort()
	return cs
}

func less(e1, f1, e2, f2 int) bool {
	if e1 != e2 {
		return e1 < e2
	}
	return f1 < f2
}

// Verify checks that every channel has a matching channel with the same
// number of faces on the remote rank.
func (c *Connector) Verify() error {
	structs := make([]CommStruct, c.NumRanks)
	for p := range structs {
		structs[p] = c.CommStruct(p)
	}

	for p, cs := range structs {
		for _, ch := range cs.Channels {
			if len(ch.SendFaces) != len(ch.RecvFaces) {
				return fmt.Errorf("rank %d: channel to %d sends %d faces, receives %d",
					p, ch.Rank, len(ch.SendFaces), len(ch.RecvFaces))
			}
			found := false
			for _, rc := range structs[ch.Rank].Channels {
				if rc.Rank == p && rc.LocalTg == ch.RemoteTg && rc.RemoteTg == ch.LocalTg {
					if len(rc.RecvFaces) != len(ch.SendFaces) {
						return fmt.Errorf("length mismatch: rank %d sends %d faces to rank %d, which receives %d",
							p, len(ch.SendFaces), ch.Rank, len(rc.RecvFaces))
					}
					found = true
				}
			}
			if !found {
				return fmt.Errorf("rank %d: channel (%d,%d) to rank %d has no counterpart",
					p, ch.LocalTg, ch.RemoteTg, ch.Rank)
			}
		}
	}
	return nil
}
