package dwdma

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

//Callback is invoked once per completed block. data is the value given to SetCallback.
//Callbacks run on the dispatcher goroutine and may use the Engine, except for Close.
type Callback func(data interface{})

//Hardware bundles the collaborators an Engine is probed on.
type Hardware struct {
	Regs  Registers
	IRQ   InterruptLine
	Alloc Allocator
	// Sched runs the drain poll. A TimerScheduler with the configured tick is used when nil.
	Sched Scheduler

	Logger  *logrus.Logger
	Metrics metrics.Registry
}

//data for each DMA channel
type chanData struct {
	state     ChannelState
	lli       Mem // descriptor chain, owned by the channel while configured
	descCount int
	cfgLow    uint32
	cfgHigh   uint32

	cb     Callback
	cbData interface{}

	drainPolls int   // poll ticks spent draining
	err        error // outcome of the last drain
}

type completion struct {
	channel int
	cb      Callback
	data    interface{}
}

//Engine is one probed DMA controller.
type Engine struct {
	regs  Registers
	irq   InterruptLine
	alloc Allocator
	sched Scheduler
	l     *logrus.Logger
	m     *engineMetrics
	cfg   Config

	ownedSched *TimerScheduler

	// mu guards everything below. It is taken from client calls, the
	// interrupt handler and the drain poll.
	mu          sync.Mutex
	chans       [NumChannels]chanData
	pollPending bool
	closed      bool

	completions chan completion
	stopChan    chan chan struct{}
	closing     int32 // set once Close starts, queued completions are then dropped
}

//Probe sets up the controller behind hw and returns an Engine ready to hand out channels.
//A nil cfg uses DefaultConfig.
func Probe(hw Hardware, cfg *Config) (*Engine, error) {
	if hw.Regs == nil || hw.IRQ == nil || hw.Alloc == nil {
		return nil, errors.Wrap(ErrMissingHardware, "probe")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "probe")
	}
	e := &Engine{
		regs:        hw.Regs,
		irq:         hw.IRQ,
		alloc:       hw.Alloc,
		sched:       hw.Sched,
		l:           hw.Logger,
		m:           newEngineMetrics(hw.Metrics),
		cfg:         *cfg,
		completions: make(chan completion, cfg.CompletionQueue),
		stopChan:    make(chan chan struct{}),
	}
	if e.l == nil {
		e.l = logrus.StandardLogger()
	}
	if e.sched == nil {
		e.ownedSched = NewTimerScheduler(cfg.Tick)
		e.sched = e.ownedSched
	}

	e.setup()
	go e.dispatcher()

	if err := e.irq.Register(e.handleIRQ); err != nil {
		e.stopDispatcher()
		e.regs.Write(registerOffsetDmaCfg, registerValueDmaCfgDisable)
		if e.ownedSched != nil {
			e.ownedSched.Stop()
		}
		return nil, errors.Wrap(err, "probe: register interrupt")
	}
	e.irq.Enable()
	e.l.WithField("channels", NumChannels).Info("DMA engine probed")
	return e, nil
}

//mask all kinds of interrupts for all channels and enable the controller
func (e *Engine) setup() {
	for _, offset := range registerOffsetsMask {
		e.regs.Write(offset, registerValueMaskAll)
	}
	e.regs.Write(registerOffsetDmaCfg, registerValueDmaCfgEnable)
}

//Close disables every channel and the interrupt line and frees all descriptor chains.
//Pending completions are discarded; a callback already running finishes first.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	atomic.StoreInt32(&e.closing, 1)
	e.irq.Disable()
	for _, offset := range registerOffsetsMask {
		e.regs.Write(offset, registerValueMaskAll)
	}
	for i := range e.chans {
		ch := &e.chans[i]
		if ch.state == StateRunning || ch.state == StateDraining {
			e.disableChannel(i)
		}
		e.freeChain(ch)
		ch.state = StateFree
		ch.cb = nil
		ch.cbData = nil
	}
	e.pollPending = false
	e.m.busy.Update(0)
	e.mu.Unlock()

	if e.ownedSched != nil {
		e.ownedSched.Stop()
	}
	e.stopDispatcher()
	err := e.irq.Close()
	if err != nil {
		return errors.Wrap(err, "close")
	}
	e.l.Info("DMA engine closed")
	return nil
}

//PMContextStore saves controller state before entering D3. Nothing needs saving yet.
func (e *Engine) PMContextStore() error {
	return nil
}

//PMContextRestore restores controller state after leaving D3.
func (e *Engine) PMContextRestore() error {
	return nil
}

//channel returns the slot for id. e.mu must be held.
func (e *Engine) channel(id int) (*chanData, error) {
	if e.closed {
		return nil, ErrEngineClosed
	}
	if id < 0 || id >= NumChannels {
		return nil, ErrInvalidChannel
	}
	return &e.chans[id], nil
}

//acquired returns the slot for id if a client owns it. e.mu must be held.
func (e *Engine) acquired(id int) (*chanData, error) {
	ch, err := e.channel(id)
	if err != nil {
		return nil, err
	}
	if ch.state == StateFree {
		return nil, ErrChannelNotAcquired
	}
	return ch, nil
}

func (e *Engine) freeChain(ch *chanData) {
	if ch.lli == nil {
		return
	}
	if err := ch.lli.Close(); err != nil {
		e.l.WithError(err).Warn("Failed to free descriptor chain")
	}
	ch.lli = nil
	ch.descCount = 0
}

//updateBusy refreshes the busy channel gauge. e.mu must be held.
func (e *Engine) updateBusy() {
	var n int64
	for i := range e.chans {
		if e.chans[i].state != StateFree {
			n++
		}
	}
	e.m.busy.Update(n)
}
