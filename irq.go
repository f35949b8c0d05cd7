package dwdma

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

//handleIRQ is installed on the interrupt line. It runs once per completed period
//and hands block completions to the dispatcher.
func (e *Engine) handleIRQ() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.irq.Disable()
	if e.closed {
		e.irq.Ack()
		return
	}

	e.checkErrors()

	//inform the clients that a period has been transferred. Only channels that
	//signaled a block are notified, the others are left alone.
	status := e.regs.Read(registerOffsetStatusBlk)
	if status != 0 {
		for i := range e.chans {
			if status&registerValueChanClear(i) == 0 {
				continue
			}
			e.regs.Write(registerOffsetClearBlock, registerValueChanClear(i))
			ch := &e.chans[i]
			if ch.state == StateFree || ch.cb == nil {
				continue
			}
			e.regs.Write(registerOffsetMaskBlock, registerValueChanMask(i))
			e.enqueue(completion{channel: i, cb: ch.cb, data: ch.cbData})
		}
	}

	e.irq.Ack()
	e.irq.Enable()
}

//checkErrors logs and clears latched error interrupts. e.mu must be held.
func (e *Engine) checkErrors() {
	status := e.regs.Read(registerOffsetStatusErr)
	if status == 0 {
		return
	}
	for i := range e.chans {
		if status&registerValueChanClear(i) == 0 {
			continue
		}
		e.regs.Write(registerOffsetClearErr, registerValueChanClear(i))
		e.l.WithFields(logrus.Fields{
			"channel": i,
			"state":   e.chans[i].state,
		}).Error("DMA channel reported a bus error")
	}
}

//enqueue hands a completion to the dispatcher without blocking. e.mu must be held.
func (e *Engine) enqueue(c completion) {
	select {
	case e.completions <- c:
	default:
		e.m.dropped.Inc(1)
		e.l.WithField("channel", c.channel).Warn("Completion queue full, dropping DMA completion")
	}
}

//dispatcher runs client callbacks outside interrupt context and without e.mu held, so
//callbacks may call back into the Engine. A stop channel is used to indicate when
//the dispatcher should terminate.
func (e *Engine) dispatcher() {
	for {
		select {
		case c := <-e.stopChan:
			// Send a value back to signal that the dispatcher has terminated.
			c <- struct{}{}
			return
		case ev := <-e.completions:
			if atomic.LoadInt32(&e.closing) != 0 {
				continue
			}
			e.m.completions.Inc(1)
			ev.cb(ev.data)
		}
	}
}

//stopDispatcher terminates the dispatcher and drops the completions still queued
func (e *Engine) stopDispatcher() {
	c := make(chan struct{})
	e.stopChan <- c
	<-c
	for {
		select {
		case <-e.completions:
		default:
			return
		}
	}
}
