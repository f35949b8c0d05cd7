package dwdma

import (
	"os"

	"github.com/DerLukas15/rpihardware"
	"github.com/DerLukas15/rpimemmap"
	"github.com/pkg/errors"
)

//PeripheralRegisters is a register window mapped from the peripheral bus through /dev/mem.
type PeripheralRegisters struct {
	mem rpimemmap.MemMap
}

//NewPeripheralRegisters maps the register window at busOffset.
func NewPeripheralRegisters(busOffset uint32) (*PeripheralRegisters, error) {
	size := uint32(os.Getpagesize())
	if size < registerWindowSize {
		size = registerWindowSize
	}
	mem := rpimemmap.NewPeripheral(size)
	err := mem.Map(busOffset, rpimemmap.MemDevDefault, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map DMA registers")
	}
	return &PeripheralRegisters{mem: mem}, nil
}

//Read implements Registers
func (r *PeripheralRegisters) Read(offset uint32) uint32 {
	return *rpimemmap.Reg32(r.mem, offset)
}

//Write implements Registers
func (r *PeripheralRegisters) Write(offset uint32, value uint32) {
	*rpimemmap.Reg32(r.mem, offset) = value
}

//Close unmaps the register window
func (r *PeripheralRegisters) Close() error {
	if r.mem == nil {
		return nil
	}
	err := r.mem.Unmap()
	if err != nil {
		return err
	}
	r.mem = nil
	return nil
}

func (r *PeripheralRegisters) String() string {
	return "DMA registers: " + r.mem.String()
}

//UncachedAllocator hands out uncached memory shared with the VideoCore, suitable for
//descriptors walked by the DMA engine.
type UncachedAllocator struct {
	rpi1 bool // first generation boards need the memory allocated coherent with L2
}

//NewUncachedAllocator detects the board and picks the allocation flags for it.
func NewUncachedAllocator() (*UncachedAllocator, error) {
	hw, err := rpihardware.Check()
	if err != nil {
		return nil, errors.Wrap(err, "uncached allocator")
	}
	return &UncachedAllocator{rpi1: hw.RPiType == rpihardware.RPiType1}, nil
}

//Alloc implements Allocator
func (a *UncachedAllocator) Alloc(size int) (Mem, error) {
	mem := rpimemmap.NewUncached(uint32(size)) // will be rounded to next pageSize anyway
	allocationFlags := rpimemmap.UncachedMemFlagDirect
	if a.rpi1 {
		allocationFlags = 0xc
	}
	err := mem.Map(0, "", allocationFlags)
	if err != nil {
		return nil, errors.Wrap(err, "map uncached memory")
	}
	return &uncachedMem{mem: mem, size: size}, nil
}

type uncachedMem struct {
	mem  rpimemmap.MemMap
	size int
}

func (m *uncachedMem) Load32(offset uint32) uint32 {
	return *rpimemmap.Reg32(m.mem, offset)
}

func (m *uncachedMem) Store32(offset uint32, value uint32) {
	*rpimemmap.Reg32(m.mem, offset) = value
}

func (m *uncachedMem) BusAddr() uint32 {
	return m.mem.BusAddr()
}

func (m *uncachedMem) Size() int {
	return m.size
}

func (m *uncachedMem) Close() error {
	if m.mem == nil {
		return nil
	}
	err := m.mem.Unmap()
	m.mem = nil
	return err
}
