package dwdma

import (
	"github.com/pkg/errors"
)

//ChannelStatus is a snapshot of one channel
type ChannelStatus struct {
	State       ChannelState
	Descriptors int
	CfgLow      uint32
	CfgHigh     uint32
	// SrcPos and DestPos are the live source and destination addresses of a running channel
	SrcPos  uint32
	DestPos uint32
	// Err is the outcome of the last stop or drain, nil if the FIFO emptied
	Err error
}

//Acquire claims the first free channel and returns its index.
/*
Channels that are still draining are skipped. The latched interrupt status of the
claimed channel is cleared. ErrNoChannelAvailable is returned when no channel is free.
*/
func (e *Engine) Acquire() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return -1, errors.Wrap(ErrEngineClosed, "acquire")
	}
	for i := range e.chans {
		ch := &e.chans[i]
		//draining channels stay out of the pool until the poll sees their FIFO empty
		if ch.state != StateFree {
			continue
		}
		ch.state = StateIdle
		ch.err = nil
		for _, offset := range registerOffsetsClear {
			e.regs.Write(offset, registerValueChanClear(i))
		}
		e.m.acquire.Inc(1)
		e.updateBusy()
		e.l.WithField("channel", i).Debug("Acquired DMA channel")
		return i, nil
	}
	e.m.exhausted.Inc(1)
	return -1, errors.Wrap(ErrNoChannelAvailable, "acquire")
}

//Release returns the channel to the free pool, clearing its callback and freeing its
//descriptor chain. A running or draining channel must be stopped and drained first.
func (e *Engine) Release(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.channel(id)
	if err != nil {
		return errors.Wrap(err, "release")
	}
	if ch.state == StateRunning || ch.state == StateDraining {
		return errors.Wrapf(ErrChannelBusy, "release channel %d", id)
	}
	e.freeChain(ch)
	ch.state = StateFree
	ch.cb = nil
	ch.cbData = nil
	ch.cfgLow = 0
	ch.cfgHigh = 0
	e.updateBusy()
	e.l.WithField("channel", id).Debug("Released DMA channel")
	return nil
}

//SetCallback registers cb to be called with data once per completed block.
//A nil cb disables notification.
func (e *Engine) SetCallback(id int, cb Callback, data interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.acquired(id)
	if err != nil {
		return errors.Wrap(err, "set callback")
	}
	ch.cb = cb
	ch.cbData = data
	return nil
}

//Status returns the current state and position of the channel.
func (e *Engine) Status(id int) (ChannelStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.channel(id)
	if err != nil {
		return ChannelStatus{}, errors.Wrap(err, "status")
	}
	s := ChannelStatus{
		State:       ch.state,
		Descriptors: ch.descCount,
		CfgLow:      ch.cfgLow,
		CfgHigh:     ch.cfgHigh,
		Err:         ch.err,
	}
	if ch.state == StateRunning || ch.state == StateDraining {
		s.SrcPos = e.regs.Read(registerOffsetChannel(id, registerOffsetSar))
		s.DestPos = e.regs.Read(registerOffsetChannel(id, registerOffsetDar))
	}
	return s, nil
}
