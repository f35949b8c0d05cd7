package dwdma

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//Direction is the transfer type programmed into the flow control field
type Direction uint8

//Valid Directions
const (
	MemToMem Direction = iota
	MemToDev
	DevToMem
	DevToDev
)

func (d Direction) String() string {
	switch d {
	case MemToMem:
		return "mem-to-mem"
	case MemToDev:
		return "mem-to-dev"
	case DevToMem:
		return "dev-to-mem"
	case DevToDev:
		return "dev-to-dev"
	}
	return "invalid"
}

//Width is the transfer width of one side, encoded as log2 of the byte count
type Width uint8

//Valid Widths
const (
	Width8 Width = iota
	Width16
	Width32
	Width64
	Width128
	Width256
)

//maxPeripheral is the largest handshake interface id
const maxPeripheral = 0xf

//Segment is one contiguous transfer. Size is in bytes; 0 leaves the block size unprogrammed.
type Segment struct {
	Src  uint32
	Dest uint32
	Size uint32
}

//SGConfig describes a scatter/gather transfer
type SGConfig struct {
	Direction Direction
	SrcWidth  Width
	DestWidth Width
	// SrcPeripheral and DestPeripheral route the device side of the channel
	SrcPeripheral  uint32
	DestPeripheral uint32
	Segments       []Segment
}

const (
	//Offsets of the words of one linked list item
	lliOffsetSar      uint32 = 0 * 4
	lliOffsetDar      uint32 = 1 * 4
	lliOffsetLlp      uint32 = 2 * 4
	lliOffsetCtrlLow  uint32 = 3 * 4
	lliOffsetCtrlHigh uint32 = 4 * 4
	lliOffsetSstat    uint32 = 5 * 4
	lliOffsetDstat    uint32 = 6 * 4
	lliSize           uint32 = 7 * 4
)

//lli is one node of a descriptor chain living in device memory
type lli struct {
	mem  Mem
	base uint32
}

func nodeAt(mem Mem, i int) lli {
	return lli{mem: mem, base: uint32(i) * lliSize}
}

func (n lli) get(offset uint32) uint32 {
	return n.mem.Load32(n.base + offset)
}

func (n lli) set(offset uint32, v uint32) {
	n.mem.Store32(n.base+offset, v)
}

func (n lli) setBits(offset uint32, v uint32) {
	n.set(offset, n.get(offset)|v)
}

func (n lli) clearBits(offset uint32, v uint32) {
	n.set(offset, n.get(offset)&^v)
}

//busAddr is the address of the node as seen by the engine
func (n lli) busAddr() uint32 {
	return n.mem.BusAddr() + n.base
}

//Validate checks the configuration without touching hardware
func (c *SGConfig) Validate() error {
	if c.Direction > DevToDev {
		return errors.Wrapf(ErrInvalidConfig, "direction %d", c.Direction)
	}
	if c.SrcWidth > Width256 || c.DestWidth > Width256 {
		return errors.Wrap(ErrInvalidConfig, "transfer width")
	}
	if c.SrcPeripheral > maxPeripheral || c.DestPeripheral > maxPeripheral {
		return errors.Wrap(ErrInvalidConfig, "peripheral id")
	}
	if len(c.Segments) == 0 {
		return ErrNoSegments
	}
	for i, seg := range c.Segments {
		if seg.Size%(1<<c.SrcWidth) != 0 {
			return errors.Wrapf(ErrInvalidConfig, "segment %d size not a multiple of source width", i)
		}
		if seg.Size>>c.SrcWidth > registerValueCtrlHighBlockTs {
			return errors.Wrapf(ErrBlockTooLarge, "segment %d", i)
		}
	}
	return nil
}

//SetConfig builds the descriptor chain for the channel. Any previous chain is freed.
func (e *Engine) SetConfig(id int, config *SGConfig) error {
	if config == nil {
		return errors.Wrap(ErrInvalidConfig, "set config")
	}
	if err := config.Validate(); err != nil {
		return errors.Wrap(err, "set config")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.acquired(id)
	if err != nil {
		return errors.Wrap(err, "set config")
	}
	if ch.state == StateRunning || ch.state == StateDraining {
		return errors.Wrapf(ErrChannelBusy, "set config channel %d", id)
	}
	mem, err := e.alloc.Alloc(len(config.Segments) * int(lliSize))
	if err != nil {
		return errors.Wrap(err, "set config: allocate descriptors")
	}
	e.freeChain(ch)
	ch.lli = mem
	ch.descCount = len(config.Segments)
	ch.cfgLow, ch.cfgHigh = buildChain(mem, config)
	e.l.WithFields(logrus.Fields{
		"channel":     id,
		"direction":   config.Direction,
		"descriptors": ch.descCount,
	}).Debug("Configured DMA channel")
	return nil
}

//buildChain writes one linked list item per segment into mem and returns the channel
//configuration words. config must be valid.
func buildChain(mem Mem, config *SGConfig) (cfgLow, cfgHigh uint32) {
	for off := uint32(0); off < uint32(len(config.Segments))*lliSize; off += 4 {
		mem.Store32(off, 0)
	}

	//write CTL_LO for the first lli
	head := nodeAt(mem, 0)
	head.setBits(lliOffsetCtrlLow, registerValueCtrlLowFc(uint32(config.Direction))|
		registerValueCtrlLowSrcWidth(uint32(config.SrcWidth))|
		registerValueCtrlLowDstWidth(uint32(config.DestWidth))|
		registerValueCtrlLowSrcMsize(0)|
		registerValueCtrlLowDstMsize(0))

	//address increment mode and handshake interfaces
	switch config.Direction {
	case MemToMem:
		head.setBits(lliOffsetCtrlLow, registerValueCtrlLowSrcInc|registerValueCtrlLowDstInc)
	case MemToDev:
		head.setBits(lliOffsetCtrlLow, registerValueCtrlLowSrcInc|registerValueCtrlLowDstFix)
		cfgHigh |= registerValueCfgHighDstPer(config.DestPeripheral)
	case DevToMem:
		head.setBits(lliOffsetCtrlLow, registerValueCtrlLowSrcFix|registerValueCtrlLowDstInc)
		cfgHigh |= registerValueCfgHighSrcPer(config.SrcPeripheral)
	case DevToDev:
		head.setBits(lliOffsetCtrlLow, registerValueCtrlLowSrcFix|registerValueCtrlLowDstFix)
		cfgHigh |= registerValueCfgHighSrcPer(config.SrcPeripheral) | registerValueCfgHighDstPer(config.DestPeripheral)
	}

	head.clearBits(lliOffsetCtrlHigh, registerValueCtrlHighDone)

	last := len(config.Segments) - 1
	for i, seg := range config.Segments {
		node := nodeAt(mem, i)
		node.set(lliOffsetSar, seg.Src)
		node.set(lliOffsetDar, seg.Dest)
		node.setBits(lliOffsetCtrlLow, registerValueCtrlLowIntEn)
		node.setBits(lliOffsetCtrlHigh, (seg.Size>>config.SrcWidth)&registerValueCtrlHighBlockTs)
		if i != last {
			node.set(lliOffsetLlp, nodeAt(mem, i+1).busAddr())
			node.setBits(lliOffsetCtrlLow, registerValueCtrlLowLlpSEn|registerValueCtrlLowLlpDEn)
		} else {
			node.set(lliOffsetLlp, 0)
			node.clearBits(lliOffsetCtrlLow, registerValueCtrlLowLlpSEn|registerValueCtrlLowLlpDEn)
			cfgLow &^= registerValueCfgLowReloadSar | registerValueCfgLowReloadDar
		}
	}
	return cfgLow, cfgHigh
}
