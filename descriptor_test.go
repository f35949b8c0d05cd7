package dwdma

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChain_Directions(t *testing.T) {
	tests := []struct {
		dir      Direction
		addrMode uint32
		cfgHigh  uint32
	}{
		{MemToMem, registerValueCtrlLowSrcInc | registerValueCtrlLowDstInc, 0},
		{MemToDev, registerValueCtrlLowSrcInc | registerValueCtrlLowDstFix, 5 << 11},
		{DevToMem, registerValueCtrlLowSrcFix | registerValueCtrlLowDstInc, 3 << 7},
		{DevToDev, registerValueCtrlLowSrcFix | registerValueCtrlLowDstFix, 3<<7 | 5<<11},
	}

	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			heap := NewHeapAllocator(testHeapBase, 4096)
			mem, err := heap.Alloc(2 * int(lliSize))
			require.NoError(t, err)

			cfg := &SGConfig{
				Direction:      tt.dir,
				SrcWidth:       Width16,
				DestWidth:      Width32,
				SrcPeripheral:  3,
				DestPeripheral: 5,
				Segments:       segments(2),
			}
			require.NoError(t, cfg.Validate())
			cfgLow, cfgHigh := buildChain(mem, cfg)

			ctrl := nodeAt(mem, 0).get(lliOffsetCtrlLow)
			assert.Equal(t, tt.addrMode, ctrl&registerValueCtrlLowAddrMsk)
			assert.Equal(t, uint32(tt.dir), (ctrl>>20)&0x7, "transfer type")
			assert.Equal(t, uint32(Width16), (ctrl>>4)&0x7, "source width")
			assert.Equal(t, uint32(Width32), (ctrl>>1)&0x7, "destination width")
			assert.Zero(t, (ctrl>>11)&0x3f, "burst size")
			assert.Equal(t, tt.cfgHigh, cfgHigh)
			assert.Zero(t, cfgLow&(registerValueCfgLowReloadSar|registerValueCfgLowReloadDar))
			assert.Zero(t, nodeAt(mem, 0).get(lliOffsetCtrlHigh)&registerValueCtrlHighDone)
		})
	}
}

func TestBuildChain_Links(t *testing.T) {
	for n := 1; n <= 6; n++ {
		heap := NewHeapAllocator(testHeapBase, 4096)
		mem, err := heap.Alloc(n * int(lliSize))
		require.NoError(t, err)

		segs := segments(n)
		buildChain(mem, &SGConfig{Direction: DevToMem, SrcWidth: Width32, DestWidth: Width32, Segments: segs})

		chainEn := registerValueCtrlLowLlpSEn | registerValueCtrlLowLlpDEn
		for i := 0; i < n; i++ {
			node := nodeAt(mem, i)
			assert.Equal(t, segs[i].Src, node.get(lliOffsetSar))
			assert.Equal(t, segs[i].Dest, node.get(lliOffsetDar))
			assert.Equal(t, uint32(0x100>>Width32), node.get(lliOffsetCtrlHigh)&registerValueCtrlHighBlockTs)

			ctrl := node.get(lliOffsetCtrlLow)
			if i < n-1 {
				assert.Equal(t, mem.BusAddr()+uint32(i+1)*lliSize, node.get(lliOffsetLlp), "node %d of %d", i, n)
				assert.NotZero(t, node.get(lliOffsetLlp))
				assert.Equal(t, chainEn, ctrl&chainEn, "node %d of %d", i, n)
			} else {
				assert.Zero(t, node.get(lliOffsetLlp), "last node of %d", n)
				assert.Zero(t, ctrl&chainEn, "last node of %d", n)
			}
			if i > 0 {
				// Only the head carries transfer type, widths and address mode
				assert.Zero(t, ctrl&^(chainEn|registerValueCtrlLowIntEn), "node %d of %d", i, n)
			}
		}
	}
}

func TestBuildChain_ClearsStaleMemory(t *testing.T) {
	heap := NewHeapAllocator(testHeapBase, 4096)
	mem, err := heap.Alloc(2 * int(lliSize))
	require.NoError(t, err)
	for off := uint32(0); off < 2*lliSize; off += 4 {
		mem.Store32(off, 0xffffffff)
	}

	buildChain(mem, &SGConfig{Direction: MemToMem, Segments: []Segment{{Src: 1, Dest: 2}, {Src: 3, Dest: 4}}})
	assert.Zero(t, nodeAt(mem, 0).get(lliOffsetCtrlHigh))
	assert.Zero(t, nodeAt(mem, 1).get(lliOffsetSstat))
	assert.Zero(t, nodeAt(mem, 1).get(lliOffsetDstat))
	assert.Zero(t, nodeAt(mem, 1).get(lliOffsetLlp))
}

func TestSetConfig_DevToMemThreeSegments(t *testing.T) {
	r := newTestRig(t, nil)
	id, err := r.e.Acquire()
	require.NoError(t, err)

	require.NoError(t, r.e.SetConfig(id, &SGConfig{
		Direction:     DevToMem,
		SrcWidth:      Width32,
		DestWidth:     Width32,
		SrcPeripheral: 2,
		Segments:      segments(3),
	}))

	st, err := r.e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Descriptors)
	assert.Equal(t, uint32(2<<7), st.CfgHigh)

	mem := r.e.chans[id].lli
	require.NotNil(t, mem)
	assert.Equal(t, 3*int(lliSize), mem.Size())
	assert.NotZero(t, nodeAt(mem, 0).get(lliOffsetLlp))
	assert.NotZero(t, nodeAt(mem, 1).get(lliOffsetLlp))
	assert.Zero(t, nodeAt(mem, 2).get(lliOffsetLlp))
}

func TestSetConfig_Errors(t *testing.T) {
	r := newTestRig(t, nil)

	err := r.e.SetConfig(0, &SGConfig{Segments: segments(1)})
	assert.True(t, errors.Is(err, ErrChannelNotAcquired))

	id, err := r.e.Acquire()
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  *SGConfig
		err  error
	}{
		{"nil", nil, ErrInvalidConfig},
		{"no segments", &SGConfig{}, ErrNoSegments},
		{"direction", &SGConfig{Direction: 4, Segments: segments(1)}, ErrInvalidConfig},
		{"width", &SGConfig{SrcWidth: 6, Segments: segments(1)}, ErrInvalidConfig},
		{"peripheral", &SGConfig{Direction: MemToDev, DestPeripheral: 16, Segments: segments(1)}, ErrInvalidConfig},
		{"unaligned size", &SGConfig{SrcWidth: Width32, Segments: []Segment{{Size: 6}}}, ErrInvalidConfig},
		{"block too large", &SGConfig{SrcWidth: Width8, Segments: []Segment{{Size: 0x1000}}}, ErrBlockTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.e.SetConfig(id, tt.cfg)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}

	assert.True(t, errors.Is(r.e.SetConfig(-1, &SGConfig{Segments: segments(1)}), ErrInvalidChannel))
	assert.True(t, errors.Is(r.e.SetConfig(NumChannels, &SGConfig{Segments: segments(1)}), ErrInvalidChannel))
}

func TestSetConfig_Busy(t *testing.T) {
	r := newTestRig(t, nil)
	id := r.configured(t, 2)
	require.NoError(t, r.e.Start(id))

	err := r.e.SetConfig(id, &SGConfig{Segments: segments(1)})
	assert.True(t, errors.Is(err, ErrChannelBusy))

	require.NoError(t, r.e.Stop(id))
	err = r.e.SetConfig(id, &SGConfig{Segments: segments(1)})
	assert.True(t, errors.Is(err, ErrChannelBusy))
}

func TestSetConfig_ReconfigureFreesChain(t *testing.T) {
	r := newTestRig(t, nil)
	id := r.configured(t, 4)
	assert.Equal(t, 1, r.heap.InUse())

	require.NoError(t, r.e.SetConfig(id, &SGConfig{Segments: segments(2)}))
	assert.Equal(t, 1, r.heap.InUse())
	st, err := r.e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Descriptors)
}

func TestSetConfig_AllocationFailure(t *testing.T) {
	r := newTestRig(t, nil)
	id := r.configured(t, 1)
	before := r.e.chans[id].lli

	// far more descriptors than the heap holds
	err := r.e.SetConfig(id, &SGConfig{Segments: make([]Segment, 4096)})
	require.Error(t, err)
	assert.Same(t, before, r.e.chans[id].lli, "previous chain kept")
	assert.Equal(t, 1, r.heap.InUse())
}
