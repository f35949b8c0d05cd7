package dwdma

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DerLukas15/dwdma/sim"
)

const testHeapBase = 0x9e000000

// manualScheduler queues tasks until the test runs them
type manualScheduler struct {
	mu     sync.Mutex
	tasks  []Task
	delays []time.Duration
}

func (s *manualScheduler) Schedule(t Task, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	s.delays = append(s.delays, delay)
}

// run executes every queued task once, requeueing those asking for another tick
func (s *manualScheduler) run() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.delays = nil
	s.mu.Unlock()
	for _, t := range tasks {
		if t() {
			s.Schedule(t, time.Millisecond)
		}
	}
	return len(tasks)
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

type testRig struct {
	e     *Engine
	ctrl  *sim.Controller
	heap  *HeapAllocator
	sched *manualScheduler
	reg   metrics.Registry
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func newTestRig(t *testing.T, cfg *Config) *testRig {
	t.Helper()
	r := &testRig{
		ctrl:  sim.New(sim.Options{}),
		heap:  NewHeapAllocator(testHeapBase, 1<<16),
		sched: &manualScheduler{},
		reg:   metrics.NewRegistry(),
	}
	e, err := Probe(Hardware{
		Regs:    r.ctrl,
		IRQ:     r.ctrl,
		Alloc:   r.heap,
		Sched:   r.sched,
		Logger:  testLogger(),
		Metrics: r.reg,
	}, cfg)
	require.NoError(t, err)
	r.e = e
	t.Cleanup(func() { e.Close() })
	return r
}

func segments(n int) []Segment {
	segs := make([]Segment, n)
	for i := range segs {
		segs[i] = Segment{
			Src:  0x1000_0000 + uint32(i)*0x100,
			Dest: 0x2000_0000 + uint32(i)*0x100,
			Size: 0x100,
		}
	}
	return segs
}

// configured acquires a channel and builds a mem to mem chain of n segments on it
func (r *testRig) configured(t *testing.T, n int) int {
	t.Helper()
	id, err := r.e.Acquire()
	require.NoError(t, err)
	require.NoError(t, r.e.SetConfig(id, &SGConfig{
		Direction: MemToMem,
		SrcWidth:  Width32,
		DestWidth: Width32,
		Segments:  segments(n),
	}))
	return id
}

func (r *testRig) state(t *testing.T, id int) ChannelState {
	t.Helper()
	st, err := r.e.Status(id)
	require.NoError(t, err)
	return st.State
}

func (r *testRig) counter(name string) int64 {
	return metrics.GetOrRegisterCounter(name, r.reg).Count()
}
