package parallel

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds K line elements with face 0 on the left and face 1 on the
// right; end faces connect to their own element.
func chain(K int) (EToE, EToF [][]int) {
	EToE = make([][]int, K)
	EToF = make([][]int, K)
	for e := 0; e < K; e++ {
		EToE[e] = []int{e, e}
		EToF[e] = []int{0, 1}
		if e > 0 {
			EToE[e][0], EToF[e][0] = e-1, 1
		}
		if e < K-1 {
			EToE[e][1], EToF[e][1] = e+1, 0
		}
	}
	return EToE, EToF
}

func chainConnector(t *testing.T) *Connector {
	EToE, EToF := chain(6)
	c, err := NewConnector(2, EToE, EToF, []int{0, 0, 0, 1, 1, 2}, []uint16{0, 0, 0, 1, 1, 1})
	require.NoError(t, err)
	return c
}

func TestConnectorMappings(t *testing.T) {
	c := chainConnector(t)
	assert.Equal(t, 3, c.NumRanks)
	assert.Equal(t, uint16(2), c.NTgs)
	assert.Equal(t, []int{3, 2, 1}, c.ElemsPerRank)
	assert.Equal(t, []int{3, 4}, c.LocalToGlobalElem[1])
	assert.Equal(t, 1, c.GlobalToLocalElem[1][4])
	require.NoError(t, c.Verify())
}

func TestConnectorCommStruct(t *testing.T) {
	c := chainConnector(t)

	cs0 := c.CommStruct(0)
	require.Len(t, cs0.Channels, 1)
	assert.Equal(t, ChannelSpec{
		Rank: 1, LocalTg: 0, RemoteTg: 1,
		SendFaces: []uint16{1}, SendElements: []int{2},
		RecvFaces: []uint16{1}, RecvElements: []int{2},
	}, cs0.Channels[0])

	cs1 := c.CommStruct(1)
	require.Len(t, cs1.Channels, 2)
	assert.Equal(t, 0, cs1.Channels[0].Rank)
	assert.Equal(t, []int{0}, cs1.Channels[0].SendElements)
	assert.Equal(t, []uint16{0}, cs1.Channels[0].SendFaces)
	assert.Equal(t, 2, cs1.Channels[1].Rank)
	assert.Equal(t, []int{1}, cs1.Channels[1].RecvElements)

	raw, sf, se, rf, re := cs1.Flatten(c.NTgs)
	parsed, err := ParseCommStruct(raw, sf, se, rf, re)
	require.NoError(t, err)
	assert.Equal(t, cs1, parsed)

	assert.Empty(t, c.CommStruct(7).Channels)
}

func TestNewConnectorErrors(t *testing.T) {
	EToE, EToF := chain(2)
	_, err := NewConnector(2, EToE, EToF, []int{0}, []uint16{0, 0})
	assert.Error(t, err)
	_, err = NewConnector(3, EToE, EToF, []int{0, 1}, []uint16{0, 0})
	assert.Error(t, err)
	EToE[0][1] = 5
	_, err = NewConnector(2, EToE, EToF, []int{0, 1}, []uint16{0, 0})
	assert.Error(t, err)
}

// Every rank exchanges its faces time group by time group; afterwards the
// ghost copy of each partition-boundary face holds the neighbour's face.
func TestConnectorExchange(t *testing.T) {
	c := chainConnector(t)
	const nByFa = 2

	runRanks(t, c.NumRanks, func(r *Remix) error {
		rank := r.Rank()
		nEls := c.ElemsPerRank[rank]
		err := r.Init(InitConfig{
			NTgs: c.NTgs, NElFas: uint16(c.NFaces), NEls: nEls, NByFa: nByFa,
			Comm: c.CommStruct(rank),
		})
		if err != nil {
			return err
		}

		own := make([]byte, nEls*c.NFaces*nByFa)
		ghost := make([]byte, len(own))
		for le, g := range c.LocalToGlobalElem[rank] {
			for f := 0; f < c.NFaces; f++ {
				off := (le*c.NFaces + f) * nByFa
				own[off], own[off+1] = byte(g), byte(f)
			}
		}

		for tg := uint16(0); tg < c.NTgs; tg++ {
			if err := r.Gather(true, tg, own); err != nil {
				return err
			}
			if err := r.BeginRecvs(true, tg); err != nil {
				return err
			}
			if err := r.BeginSends(true, tg); err != nil {
				return err
			}
			for !(r.FinSends(true, tg) && r.FinRecvs(true, tg)) {
				r.Comm()
				runtime.Gosched()
			}
			if err := r.Scatter(true, tg, ghost); err != nil {
				return err
			}
		}

		for le, g := range c.LocalToGlobalElem[rank] {
			for f := 0; f < c.NFaces; f++ {
				n := c.EToE[g][f]
				if n == g || c.EToP[n] == rank {
					continue
				}
				off := (le*c.NFaces + f) * nByFa
				if ghost[off] != byte(n) || ghost[off+1] != byte(c.EToF[g][f]) {
					return fmt.Errorf("rank %d element %d face %d: ghost %v, want (%d,%d)",
						rank, g, f, ghost[off:off+2], n, c.EToF[g][f])
				}
			}
		}
		return nil
	})
}
