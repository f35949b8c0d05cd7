package dwdma

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerLukas15/dwdma/sim"
)

func TestProbe_Setup(t *testing.T) {
	r := newTestRig(t, nil)

	for _, offset := range sim.MaskOffsets {
		assert.Equal(t, []uint32{0xff00}, r.ctrl.Writes(offset), "mask register 0x%x", offset)
		for ch := 0; ch < NumChannels; ch++ {
			assert.False(t, r.ctrl.Unmasked(offset, ch))
		}
	}
	assert.Equal(t, []uint32{1}, r.ctrl.Writes(sim.OffsetDmaCfg))
	assert.True(t, r.ctrl.LineEnabled())
	for ch := 0; ch < NumChannels; ch++ {
		assert.Equal(t, StateFree, r.state(t, ch))
	}
}

func TestProbe_Errors(t *testing.T) {
	ctrl := sim.New(sim.Options{})
	heap := NewHeapAllocator(testHeapBase, 4096)

	_, err := Probe(Hardware{IRQ: ctrl, Alloc: heap}, nil)
	assert.True(t, errors.Is(err, ErrMissingHardware))
	_, err = Probe(Hardware{Regs: ctrl, Alloc: heap}, nil)
	assert.True(t, errors.Is(err, ErrMissingHardware))
	_, err = Probe(Hardware{Regs: ctrl, IRQ: ctrl}, nil)
	assert.True(t, errors.Is(err, ErrMissingHardware))

	_, err = Probe(Hardware{Regs: ctrl, IRQ: ctrl, Alloc: heap}, &Config{Backend: "sim"})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	require.NoError(t, ctrl.Register(func() {}))
	_, err = Probe(Hardware{Regs: ctrl, IRQ: ctrl, Alloc: heap, Logger: testLogger()}, nil)
	assert.Error(t, err)
	assert.Equal(t, []uint32{1, 0}, ctrl.Writes(sim.OffsetDmaCfg), "controller disabled again")
}

func TestClose_DropsQueuedCompletions(t *testing.T) {
	r := newTestRig(t, nil)
	blocked := r.configured(t, 1)
	queued := r.configured(t, 1)

	release := make(chan struct{})
	running := make(chan struct{}, 1)
	var late int32
	require.NoError(t, r.e.SetCallback(blocked, func(interface{}) {
		running <- struct{}{}
		<-release
	}, nil))
	require.NoError(t, r.e.SetCallback(queued, func(interface{}) {
		atomic.AddInt32(&late, 1)
	}, nil))
	require.NoError(t, r.e.Start(blocked))
	require.NoError(t, r.e.Start(queued))

	r.ctrl.CompleteBlock(blocked)
	<-running
	r.ctrl.CompleteBlock(queued)

	closed := make(chan error)
	go func() { closed <- r.e.Close() }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&r.e.closing) == 1 }, time.Second, time.Millisecond)
	close(release)

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}
	assert.Zero(t, atomic.LoadInt32(&late))
	assert.Empty(t, r.e.completions)
}

func TestClose(t *testing.T) {
	r := newTestRig(t, nil)
	running := r.configured(t, 2)
	draining := r.configured(t, 1)
	idle := r.configured(t, 3)
	require.NoError(t, r.e.Start(running))
	require.NoError(t, r.e.Start(draining))
	require.NoError(t, r.e.Stop(draining))
	require.Equal(t, 3, r.heap.InUse())

	require.NoError(t, r.e.Close())
	assert.False(t, r.ctrl.ChannelEnabled(running))
	assert.False(t, r.ctrl.ChannelEnabled(draining))
	assert.Zero(t, r.heap.InUse())
	assert.False(t, r.ctrl.LineEnabled())
	for _, offset := range sim.MaskOffsets {
		assert.False(t, r.ctrl.Unmasked(offset, running))
	}

	_, err := r.e.Acquire()
	assert.True(t, errors.Is(err, ErrEngineClosed))
	assert.True(t, errors.Is(r.e.Start(idle), ErrEngineClosed))
	assert.True(t, errors.Is(r.e.Release(idle), ErrEngineClosed))
	_, err = r.e.Status(idle)
	assert.True(t, errors.Is(err, ErrEngineClosed))

	assert.NoError(t, r.e.Close())
	assert.Zero(t, metrics.GetOrRegisterGauge("dwdma.channels.busy", r.reg).Value())
}

func TestBusyGauge(t *testing.T) {
	r := newTestRig(t, nil)
	gauge := metrics.GetOrRegisterGauge("dwdma.channels.busy", r.reg)

	a, err := r.e.Acquire()
	require.NoError(t, err)
	_, err = r.e.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int64(2), gauge.Value())

	require.NoError(t, r.e.Release(a))
	assert.Equal(t, int64(1), gauge.Value())
}

func TestPMContext(t *testing.T) {
	r := newTestRig(t, nil)
	id := r.configured(t, 1)

	assert.NoError(t, r.e.PMContextStore())
	assert.NoError(t, r.e.PMContextRestore())
	assert.Equal(t, StateIdle, r.state(t, id))
}

func TestEngine_EndToEnd(t *testing.T) {
	ctrl := sim.New(sim.Options{AutoComplete: true, DrainOnSuspend: true})
	heap := NewHeapAllocator(testHeapBase, 1<<16)
	e, err := Probe(Hardware{
		Regs:    ctrl,
		IRQ:     ctrl,
		Alloc:   heap,
		Logger:  testLogger(),
		Metrics: metrics.NewRegistry(),
	}, nil)
	require.NoError(t, err)
	defer e.Close()

	done := make(chan interface{}, NumChannels)
	var ids []int
	for i := 0; i < 3; i++ {
		id, err := e.Acquire()
		require.NoError(t, err)
		require.NoError(t, e.SetConfig(id, &SGConfig{
			Direction: MemToMem,
			SrcWidth:  Width32,
			DestWidth: Width32,
			Segments:  segments(4),
		}))
		require.NoError(t, e.SetCallback(id, func(data interface{}) { done <- data }, id))
		ids = append(ids, id)
	}

	for _, id := range ids {
		require.NoError(t, e.Start(id))
	}
	seen := map[interface{}]bool{}
	for range ids {
		seen[waitCompletion(t, done)] = true
	}
	assert.Len(t, seen, len(ids))

	for _, id := range ids {
		require.NoError(t, e.Stop(id))
	}
	for _, id := range ids {
		id := id
		require.Eventually(t, func() bool {
			st, err := e.Status(id)
			return err == nil && st.State == StateIdle
		}, time.Second, time.Millisecond)
		assert.False(t, ctrl.ChannelEnabled(id))
		require.NoError(t, e.Release(id))
	}
	assert.Zero(t, heap.InUse())
}
