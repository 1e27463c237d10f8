package parallel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTgLtTruthTable(t *testing.T) {
	tests := []struct {
		msgLt, lt bool
		want      bool
	}{
		{msgLt: false, lt: false, want: true},
		{msgLt: false, lt: true, want: true},
		{msgLt: true, lt: false, want: false},
		{msgLt: true, lt: true, want: true},
	}
	for _, tt := range tests {
		ch := &Channel{
			Send: Message{Tg: 3, Lt: tt.msgLt},
			Recv: Message{Tg: 3, Lt: tt.msgLt},
		}
		assert.Equal(t, tt.want, CheckSendTgLt(ch, tt.lt, 3), "send msgLt=%v lt=%v", tt.msgLt, tt.lt)
		assert.Equal(t, tt.want, CheckRecvTgLt(ch, tt.lt, 3), "recv msgLt=%v lt=%v", tt.msgLt, tt.lt)
		// a different time group never matches
		assert.False(t, CheckSendTgLt(ch, tt.lt, 2))
		assert.False(t, CheckRecvTgLt(ch, tt.lt, 4))
	}
}

func TestTags(t *testing.T) {
	const nTgs = 3
	seen := make(map[int]bool)
	for l := uint16(0); l < nTgs; l++ {
		for r := uint16(0); r < nTgs; r++ {
			tag := SendTag(nTgs, l, r)
			assert.False(t, seen[tag], "tag %d reused", tag)
			seen[tag] = true
			// the peer receives with its own local/remote roles swapped
			assert.Equal(t, tag, RecvTag(nTgs, r, l))
		}
	}
}

func TestParseCommStruct(t *testing.T) {
	raw := []int{
		2,       // time groups
		1,       // channels of tg 0
		1, 4, 2, // remote tg 1, rank 4, two faces
		2,       // channels of tg 1
		0, 4, 1, // remote tg 0, rank 4, one face
		1, 2, 1, // remote tg 1, rank 2, one face
	}
	sendFa := []uint16{0, 1, 2, 3}
	sendEl := []int{10, 11, 12, 13}
	recvFa := []uint16{3, 2, 1, 0}
	recvEl := []int{20, 21, 22, 23}

	cs, err := ParseCommStruct(raw, sendFa, sendEl, recvFa, recvEl)
	require.NoError(t, err)
	require.Len(t, cs.Channels, 3)

	assert.Equal(t, ChannelSpec{
		Rank: 4, LocalTg: 0, RemoteTg: 1,
		SendFaces: []uint16{0, 1}, SendElements: []int{10, 11},
		RecvFaces: []uint16{3, 2}, RecvElements: []int{20, 21},
	}, cs.Channels[0])
	assert.Equal(t, uint16(1), cs.Channels[2].LocalTg)
	assert.Equal(t, 2, cs.Channels[2].Rank)
	assert.Equal(t, []int{13}, cs.Channels[2].SendElements)
	assert.Equal(t, 4, cs.NFaces())

	r2, sf, se, rf, re := cs.Flatten(2)
	assert.Equal(t, raw, r2)
	assert.Equal(t, sendFa, sf)
	assert.Equal(t, sendEl, se)
	assert.Equal(t, recvFa, rf)
	assert.Equal(t, recvEl, re)
}

func TestParseCommStructErrors(t *testing.T) {
	fa := []uint16{0}
	el := []int{0}
	for name, raw := range map[string][]int{
		"empty":     {},
		"truncated": {1, 1, 0},
		"trailing":  {1, 0, 7},
		"negative":  {1, 1, -1, 0, 1},
		"faces":     {1, 1, 0, 0, 2},
		"remote tg": {1, 1, 65536, 0, 1},
		"tgs":       {65536},
	} {
		_, err := ParseCommStruct(raw, fa, el, fa, el)
		assert.Error(t, err, name)
	}
}

func TestCommStructSort(t *testing.T) {
	cs := CommStruct{Channels: []ChannelSpec{
		{Rank: 1, LocalTg: 1, RemoteTg: 0},
		{Rank: 2, LocalTg: 0, RemoteTg: 1},
		{Rank: 0, LocalTg: 0, RemoteTg: 1},
	}}
	cs.Sort()
	assert.Equal(t, 0, cs.Channels[0].Rank)
	assert.Equal(t, 2, cs.Channels[1].Rank)
	assert.Equal(t, 1, cs.Channels[2].Rank)
}
