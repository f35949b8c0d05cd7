package dwdma

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

//pollLine is an InterruptLine where the combined interrupt status register is sampled
//instead of waiting on a host interrupt. It is used where the engine interrupt is not
//routed to the CPU running this process.
type pollLine struct {
	// Immutable.
	regs   Registers
	period time.Duration
	die    chan struct{}

	// Mutable.
	enabled   int32
	mu        sync.Mutex
	handler   func()
	closeOnce sync.Once
}

//PollInterrupts returns an InterruptLine which samples the interrupt status register every period.
func PollInterrupts(regs Registers, period time.Duration) InterruptLine {
	return &pollLine{regs: regs, period: period, die: make(chan struct{})}
}

// Register implements InterruptLine.
func (p *pollLine) Register(handler func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != nil {
		return errors.New("interrupt handler already registered")
	}
	p.handler = handler
	go p.poll()
	return nil
}

// Enable implements InterruptLine.
func (p *pollLine) Enable() {
	atomic.StoreInt32(&p.enabled, 1)
}

// Disable implements InterruptLine.
func (p *pollLine) Disable() {
	atomic.StoreInt32(&p.enabled, 0)
}

// Ack implements InterruptLine. The status register clears itself once the
// channel bits are cleared.
func (p *pollLine) Ack() {}

// Close implements InterruptLine.
func (p *pollLine) Close() error {
	p.closeOnce.Do(func() { close(p.die) })
	return nil
}

func (p *pollLine) poll() {
	t := time.NewTicker(p.period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if atomic.LoadInt32(&p.enabled) == 0 {
				continue
			}
			if p.regs.Read(registerOffsetIntrStatus) != 0 {
				p.handler()
			}
		case <-p.die:
			return
		}
	}
}

var _ InterruptLine = &pollLine{}
