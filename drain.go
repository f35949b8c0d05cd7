package dwdma

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//Stop suspends the channel. Bus requests in flight complete, no new ones are issued and the
//FIFO content is kept. Stop returns immediately; the channel is disabled by the drain poll
//once its FIFO reports empty, after which Status reports StateIdle.
func (e *Engine) Stop(id int) error {
	return errors.Wrap(e.suspend(id, registerValueCfgLowSuspend), "stop")
}

//Drain suspends the channel like Stop but flushes the FIFO instead of preserving it. It is
//used to abort a transfer.
func (e *Engine) Drain(id int) error {
	return errors.Wrap(e.suspend(id, registerValueCfgLowSuspend|registerValueCfgLowDrain), "drain")
}

func (e *Engine) suspend(id int, bits uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.acquired(id)
	if err != nil {
		return err
	}
	updateBits(e.regs, registerOffsetChannel(id, registerOffsetCfgLow), bits, bits)
	//a repeated stop keeps the running timeout, Drain after Stop only adds the flush
	if ch.state != StateDraining {
		ch.state = StateDraining
		ch.drainPolls = 0
		ch.err = nil
	}

	//FIFO cleanup is done by the scheduler
	if !e.pollPending {
		e.pollPending = true
		e.sched.Schedule(e.pollFifos, e.cfg.Tick)
	}
	e.l.WithField("channel", id).Debug("Draining DMA channel")
	return nil
}

//pollFifos checks every draining channel for an empty FIFO and disables the ones that are.
//It returns true while channels are left draining.
func (e *Engine) pollFifos() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.pollPending = false
		return false
	}
	maxPolls := e.cfg.drainPolls()
	pending := false
	for i := range e.chans {
		ch := &e.chans[i]
		if ch.state != StateDraining {
			continue
		}
		cfg := e.regs.Read(registerOffsetChannel(i, registerOffsetCfgLow))
		if cfg&registerValueCfgLowFifoEmpty != 0 {
			e.disableChannel(i)
			ch.state = StateIdle
			e.m.drainComplete.Inc(1)
			e.l.WithField("channel", i).Debug("DMA channel drained")
			continue
		}
		ch.drainPolls++
		if ch.drainPolls >= maxPolls {
			e.disableChannel(i)
			ch.state = StateIdle
			ch.err = errors.Wrapf(ErrDrainTimeout, "channel %d after %s", i, e.cfg.DrainTimeout)
			e.m.drainTimeout.Inc(1)
			e.l.WithFields(logrus.Fields{
				"channel": i,
				"cfgLow":  cfg,
				"timeout": e.cfg.DrainTimeout,
			}).Warn("DMA channel FIFO did not drain, disabled by force")
			continue
		}
		pending = true
	}
	e.pollPending = pending
	return pending
}

//disableChannel clears the enable bit of the channel. e.mu must be held.
func (e *Engine) disableChannel(id int) {
	e.regs.Write(registerOffsetChanEn, registerValueChanMask(id))
}
