//Package dwdma drives the 8 channel DesignWare scatter/gather DMA engine of an audio DSP.
package dwdma

import (
	"github.com/pkg/errors"
)

// Errors
var (
	ErrNoChannelAvailable = errors.New("no free DMA channel")
	ErrInvalidChannel     = errors.New("invalid channel")
	ErrChannelNotAcquired = errors.New("channel not acquired")
	ErrChannelBusy        = errors.New("channel running or draining")
	ErrNotConfigured      = errors.New("channel has no descriptor chain. SetConfig first?")
	ErrInvalidConfig      = errors.New("invalid transfer configuration")
	ErrNoSegments         = errors.New("segment list is empty")
	ErrBlockTooLarge      = errors.New("segment exceeds maximum block size")
	ErrDrainTimeout       = errors.New("FIFO did not drain in time")
	ErrMissingHardware    = errors.New("hardware collaborator not set")
	ErrEngineClosed       = errors.New("engine closed")
)

//NumChannels is the number of hardware channels of the engine
const NumChannels = 8

//ChannelState is the software state of one channel slot
type ChannelState uint8

//Valid ChannelStates
const (
	StateFree ChannelState = iota
	StateIdle
	StateRunning
	StateDraining
)

func (s ChannelState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	}
	return "unknown"
}

const (
	//Channel register offsets
	registerChannelStride    uint32 = 0x58
	registerOffsetSar        uint32 = 0x00
	registerOffsetDar        uint32 = 0x08
	registerOffsetLlp        uint32 = 0x10
	registerOffsetCtrlLow    uint32 = 0x18
	registerOffsetCtrlHigh   uint32 = 0x1c
	registerOffsetCfgLow     uint32 = 0x40
	registerOffsetCfgHigh    uint32 = 0x44
	registerOffsetStatusTfr  uint32 = 0x2e8
	registerOffsetStatusBlk  uint32 = 0x2f0
	registerOffsetStatusErr  uint32 = 0x308
	registerOffsetRawTfr     uint32 = 0x2c0
	registerOffsetRawBlock   uint32 = 0x2c8
	registerOffsetRawErr     uint32 = 0x2e0
	registerOffsetMaskTfr    uint32 = 0x310
	registerOffsetMaskBlock  uint32 = 0x318
	registerOffsetMaskSrcTr  uint32 = 0x320
	registerOffsetMaskDstTr  uint32 = 0x328
	registerOffsetMaskErr    uint32 = 0x330
	registerOffsetClearTfr   uint32 = 0x338
	registerOffsetClearBlock uint32 = 0x340
	registerOffsetClearSrcTr uint32 = 0x348
	registerOffsetClearDstTr uint32 = 0x350
	registerOffsetClearErr   uint32 = 0x358
	registerOffsetIntrStatus uint32 = 0x360
	registerOffsetDmaCfg     uint32 = 0x398
	registerOffsetChanEn     uint32 = 0x3a0

	//Size of the register window
	registerWindowSize uint32 = 0x400

	//Register values DmaCfg
	registerValueDmaCfgEnable  uint32 = 1
	registerValueDmaCfgDisable uint32 = 0

	//Register values Mask, all channels masked
	registerValueMaskAll uint32 = 0x0000ff00

	//Register values CfgLow
	registerValueCfgLowSuspend   uint32 = 0x100
	registerValueCfgLowFifoEmpty uint32 = 0x200
	registerValueCfgLowDrain     uint32 = 0x400
	registerValueCfgLowReloadSar uint32 = 1 << 30
	registerValueCfgLowReloadDar uint32 = 1 << 31

	//Register values CtrlLow
	registerValueCtrlLowIntEn   uint32 = 1 << 0
	registerValueCtrlLowDstInc  uint32 = 0 << 7
	registerValueCtrlLowDstFix  uint32 = 2 << 7
	registerValueCtrlLowSrcInc  uint32 = 0 << 9
	registerValueCtrlLowSrcFix  uint32 = 2 << 9
	registerValueCtrlLowLlpDEn  uint32 = 1 << 27
	registerValueCtrlLowLlpSEn  uint32 = 1 << 28
	registerValueCtrlLowAddrMsk uint32 = 0xf << 7

	//Register values CtrlHigh
	registerValueCtrlHighDone    uint32 = 0x1000
	registerValueCtrlHighBlockTs uint32 = 0x0fff
)

//helper functions for the channel registers
var (
	registerOffsetChannel = func(ch int, r uint32) uint32 { //Adds channel specific offset to address
		return uint32(ch)*registerChannelStride + r
	}

	registerValueChanMask   = func(ch int) uint32 { return 0x100 << uint(ch) }
	registerValueChanUnmask = func(ch int) uint32 { return 0x101 << uint(ch) }
	registerValueChanEnable = func(ch int) uint32 { return 0x101 << uint(ch) }
	registerValueChanClear  = func(ch int) uint32 { return 0x1 << uint(ch) }

	registerValueCtrlLowDstWidth = func(val uint32) uint32 { return ((val & 0x7) << 1) }
	registerValueCtrlLowSrcWidth = func(val uint32) uint32 { return ((val & 0x7) << 4) }
	registerValueCtrlLowDstMsize = func(val uint32) uint32 { return ((val & 0x7) << 11) }
	registerValueCtrlLowSrcMsize = func(val uint32) uint32 { return ((val & 0x7) << 14) }
	registerValueCtrlLowFc       = func(val uint32) uint32 { return ((val & 0x7) << 20) }

	registerValueCfgHighSrcPer = func(val uint32) uint32 { return ((val & 0xf) << 7) }
	registerValueCfgHighDstPer = func(val uint32) uint32 { return ((val & 0xf) << 11) }
)

//interrupt classes in the order mask and clear registers are written
var (
	registerOffsetsMask = []uint32{
		registerOffsetMaskTfr,
		registerOffsetMaskBlock,
		registerOffsetMaskSrcTr,
		registerOffsetMaskDstTr,
		registerOffsetMaskErr,
	}
	registerOffsetsClear = []uint32{
		registerOffsetClearTfr,
		registerOffsetClearBlock,
		registerOffsetClearSrcTr,
		registerOffsetClearDstTr,
		registerOffsetClearErr,
	}
)
