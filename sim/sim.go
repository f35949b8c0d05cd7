//Package sim models the register file and interrupt line of a DesignWare DMA controller.
/*
The model keeps the write-enable conventions of the mask and channel enable registers,
derives the masked status registers from the raw ones and reports the FIFO empty flag
of each channel on configuration register reads. Interrupts are raised by the test or
tool driving the model through CompleteBlock and RaiseError.
*/
package sim

import (
	"sync"

	"github.com/pkg/errors"
)

//NumChannels is the number of channels modelled
const NumChannels = 8

const (
	//Channel register offsets
	channelStride   uint32 = 0x58
	offsetCfgLow    uint32 = 0x40
	cfgLowFifoEmpty uint32 = 0x200
	cfgLowSuspend   uint32 = 0x100

	//Global register offsets
	OffsetStatusTfr   uint32 = 0x2e8
	OffsetStatusBlock uint32 = 0x2f0
	OffsetStatusErr   uint32 = 0x308
	OffsetRawTfr      uint32 = 0x2c0
	OffsetRawBlock    uint32 = 0x2c8
	OffsetRawErr      uint32 = 0x2e0
	OffsetMaskTfr     uint32 = 0x310
	OffsetMaskBlock   uint32 = 0x318
	OffsetMaskSrcTran uint32 = 0x320
	OffsetMaskDstTran uint32 = 0x328
	OffsetMaskErr     uint32 = 0x330
	OffsetClearTfr    uint32 = 0x338
	OffsetClearBlock  uint32 = 0x340
	OffsetClearSrcTr  uint32 = 0x348
	OffsetClearDstTr  uint32 = 0x350
	OffsetClearErr    uint32 = 0x358
	OffsetIntrStatus  uint32 = 0x360
	OffsetDmaCfg      uint32 = 0x398
	OffsetChanEn      uint32 = 0x3a0
)

//MaskOffsets are the five interrupt mask registers
var MaskOffsets = []uint32{OffsetMaskTfr, OffsetMaskBlock, OffsetMaskSrcTran, OffsetMaskDstTran, OffsetMaskErr}

//ClearOffsets are the five interrupt clear registers
var ClearOffsets = []uint32{OffsetClearTfr, OffsetClearBlock, OffsetClearSrcTr, OffsetClearDstTr, OffsetClearErr}

//ChannelOffset returns the offset of the channel register r of channel ch
func ChannelOffset(ch int, r uint32) uint32 {
	return uint32(ch)*channelStride + r
}

//CfgLowOffset returns the offset of the low configuration register of channel ch
func CfgLowOffset(ch int) uint32 {
	return ChannelOffset(ch, offsetCfgLow)
}

//Write is one register write seen by the model
type Write struct {
	Offset uint32
	Value  uint32
}

//Options change how the model reacts on its own
type Options struct {
	// AutoComplete raises a block completion every time a channel is enabled
	AutoComplete bool
	// DrainOnSuspend reports the FIFO empty as soon as a channel is suspended
	DrainOnSuspend bool
}

//Controller is the modelled DMA controller. It implements the register and interrupt
//line interfaces of the driver.
type Controller struct {
	opts Options

	mu        sync.Mutex
	regs      map[uint32]uint32
	writes    []Write
	fifoEmpty [NumChannels]bool

	handler   func()
	enabled   bool
	acks      int
	closed    bool
	completes sync.WaitGroup
}

//New returns a reset controller
func New(opts Options) *Controller {
	return &Controller{
		opts: opts,
		regs: make(map[uint32]uint32),
	}
}

//Read returns the value of the register at offset
func (c *Controller) Read(offset uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(offset)
}

func (c *Controller) read(offset uint32) uint32 {
	switch offset {
	case OffsetStatusTfr:
		return c.regs[OffsetRawTfr] & c.regs[OffsetMaskTfr]
	case OffsetStatusBlock:
		return c.regs[OffsetRawBlock] & c.regs[OffsetMaskBlock]
	case OffsetStatusErr:
		return c.regs[OffsetRawErr] & c.regs[OffsetMaskErr]
	case OffsetIntrStatus:
		var v uint32
		if c.read(OffsetStatusTfr) != 0 {
			v |= 1 << 0
		}
		if c.read(OffsetStatusBlock) != 0 {
			v |= 1 << 1
		}
		if c.read(OffsetStatusErr) != 0 {
			v |= 1 << 4
		}
		return v
	}
	if ch, ok := cfgLowChannel(offset); ok {
		v := c.regs[offset] &^ cfgLowFifoEmpty
		if c.fifoEmpty[ch] {
			v |= cfgLowFifoEmpty
		}
		return v
	}
	return c.regs[offset]
}

//Write stores value into the register at offset, applying the write-enable and
//write-one-to-clear conventions of the controller
func (c *Controller) Write(offset uint32, value uint32) {
	c.mu.Lock()
	c.writes = append(c.writes, Write{Offset: offset, Value: value})
	enabled := c.writeEnable(offset, value)
	switch offset {
	case OffsetMaskTfr, OffsetMaskBlock, OffsetMaskSrcTran, OffsetMaskDstTran, OffsetMaskErr:
	case OffsetChanEn:
	case OffsetClearTfr:
		c.regs[OffsetRawTfr] &^= value & 0xff
	case OffsetClearBlock:
		c.regs[OffsetRawBlock] &^= value & 0xff
	case OffsetClearErr:
		c.regs[OffsetRawErr] &^= value & 0xff
	case OffsetClearSrcTr, OffsetClearDstTr:
	default:
		c.regs[offset] = value
		if ch, ok := cfgLowChannel(offset); ok && c.opts.DrainOnSuspend && value&cfgLowSuspend != 0 {
			c.fifoEmpty[ch] = true
		}
	}
	if c.opts.AutoComplete && !c.closed {
		for _, ch := range enabled {
			c.completes.Add(1)
			go func(ch int) {
				defer c.completes.Done()
				c.CompleteBlock(ch)
			}(ch)
		}
	}
	c.mu.Unlock()
}

//writeEnable applies a write to a register using the upper byte as per channel write
//enable. It returns the channels that went from disabled to enabled on the channel
//enable register. c.mu must be held.
func (c *Controller) writeEnable(offset, value uint32) []int {
	switch offset {
	case OffsetMaskTfr, OffsetMaskBlock, OffsetMaskSrcTran, OffsetMaskDstTran, OffsetMaskErr, OffsetChanEn:
	default:
		return nil
	}
	var enabled []int
	cur := c.regs[offset]
	for ch := 0; ch < NumChannels; ch++ {
		if value&(0x100<<uint(ch)) == 0 {
			continue
		}
		bit := uint32(1) << uint(ch)
		if value&bit != 0 {
			if offset == OffsetChanEn && cur&bit == 0 {
				enabled = append(enabled, ch)
			}
			cur |= bit
		} else {
			cur &^= bit
		}
	}
	c.regs[offset] = cur
	return enabled
}

func cfgLowChannel(offset uint32) (int, bool) {
	if offset >= NumChannels*channelStride {
		return 0, false
	}
	if offset%channelStride != offsetCfgLow {
		return 0, false
	}
	return int(offset / channelStride), true
}

//SetFifoEmpty sets the FIFO empty flag reported for channel ch
func (c *Controller) SetFifoEmpty(ch int, empty bool) {
	c.mu.Lock()
	c.fifoEmpty[ch] = empty
	c.mu.Unlock()
}

//ChannelEnabled reports the enable bit of channel ch
func (c *Controller) ChannelEnabled(ch int) bool {
	return c.Read(OffsetChanEn)&(1<<uint(ch)) != 0
}

//Unmasked reports whether interrupt class mask of channel ch is enabled
func (c *Controller) Unmasked(mask uint32, ch int) bool {
	return c.Read(mask)&(1<<uint(ch)) != 0
}

//Writes returns all writes to offset in order
func (c *Controller) Writes(offset uint32) []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []uint32
	for _, w := range c.writes {
		if w.Offset == offset {
			res = append(res, w.Value)
		}
	}
	return res
}

//ResetWrites forgets the recorded writes
func (c *Controller) ResetWrites() {
	c.mu.Lock()
	c.writes = nil
	c.mu.Unlock()
}

//CompleteBlock latches a block completion for channel ch and raises the interrupt
//if it is unmasked and the line is enabled. The handler runs on the calling goroutine.
func (c *Controller) CompleteBlock(ch int) {
	c.raise(OffsetRawBlock, ch)
}

//RaiseError latches a bus error for channel ch and raises the interrupt.
func (c *Controller) RaiseError(ch int) {
	c.raise(OffsetRawErr, ch)
}

func (c *Controller) raise(raw uint32, ch int) {
	c.mu.Lock()
	c.regs[raw] |= 1 << uint(ch)
	fire := c.enabled && !c.closed && c.handler != nil && c.read(OffsetIntrStatus) != 0
	h := c.handler
	c.mu.Unlock()
	if fire {
		h()
	}
}

//Register implements the interrupt line
func (c *Controller) Register(handler func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return errors.New("sim: handler already registered")
	}
	c.handler = handler
	return nil
}

//Enable implements the interrupt line. The line is level triggered: a status raised
//while it was disabled is delivered from a new goroutine once it is enabled again.
func (c *Controller) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	if c.closed || c.handler == nil || c.read(OffsetIntrStatus) == 0 {
		return
	}
	c.completes.Add(1)
	go func() {
		defer c.completes.Done()
		c.mu.Lock()
		fire := c.enabled && !c.closed && c.read(OffsetIntrStatus) != 0
		h := c.handler
		c.mu.Unlock()
		if fire {
			h()
		}
	}()
}

//Disable implements the interrupt line
func (c *Controller) Disable() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

//Ack implements the interrupt line
func (c *Controller) Ack() {
	c.mu.Lock()
	c.acks++
	c.mu.Unlock()
}

//Close implements the interrupt line. It waits for automatic completions in flight.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.enabled = false
	c.mu.Unlock()
	c.completes.Wait()
	return nil
}

//LineEnabled reports whether the interrupt line is enabled
func (c *Controller) LineEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

//Acks returns the number of interrupt acknowledgements
func (c *Controller) Acks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acks
}
