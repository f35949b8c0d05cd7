package dwdma

import (
	"github.com/pkg/errors"
)

//Start programs the channel from the head of its descriptor chain and enables it.
/*
All five interrupt classes of the channel are unmasked. The block interrupt masked by
the completion handler is only unmasked again here.
*/
func (e *Engine) Start(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.acquired(id)
	if err != nil {
		return errors.Wrap(err, "start")
	}
	if ch.state == StateDraining {
		return errors.Wrapf(ErrChannelBusy, "start channel %d", id)
	}
	if ch.lli == nil {
		return errors.Wrapf(ErrNotConfigured, "start channel %d", id)
	}
	head := nodeAt(ch.lli, 0)

	//write SAR, DAR and LLP
	e.regs.Write(registerOffsetChannel(id, registerOffsetSar), head.get(lliOffsetSar))
	e.regs.Write(registerOffsetChannel(id, registerOffsetDar), head.get(lliOffsetDar))
	e.regs.Write(registerOffsetChannel(id, registerOffsetLlp), head.get(lliOffsetLlp))

	//program CTL and CFG
	e.regs.Write(registerOffsetChannel(id, registerOffsetCtrlLow), head.get(lliOffsetCtrlLow))
	e.regs.Write(registerOffsetChannel(id, registerOffsetCtrlHigh), head.get(lliOffsetCtrlHigh))
	e.regs.Write(registerOffsetChannel(id, registerOffsetCfgLow), ch.cfgLow)
	e.regs.Write(registerOffsetChannel(id, registerOffsetCfgHigh), ch.cfgHigh)

	ch.state = StateRunning
	ch.err = nil

	for _, offset := range registerOffsetsMask {
		e.regs.Write(offset, registerValueChanUnmask(id))
	}

	e.regs.Write(registerOffsetChanEn, registerValueChanEnable(id))
	e.l.WithField("channel", id).Debug("Started DMA channel")
	return nil
}
