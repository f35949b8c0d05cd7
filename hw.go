package dwdma

import (
	"io"
	"time"
)

//Registers is the memory mapped register window of the engine. Offsets are relative to the engine base.
type Registers interface {
	Read(offset uint32) uint32
	Write(offset uint32, value uint32)
}

//InterruptLine is the interrupt controller line the engine is wired to.
type InterruptLine interface {
	io.Closer
	// Register installs the handler invoked for every interrupt raised on the line.
	Register(handler func()) error
	Enable()
	Disable()
	// Ack clears the pending flag in the interrupt controller.
	Ack()
}

//Task is a periodic job. Returning true runs it again after one tick.
type Task func() bool

//Scheduler runs deferred tasks from its own execution context.
type Scheduler interface {
	Schedule(t Task, delay time.Duration)
}

//Mem is a block of device visible memory holding hardware consumed records.
type Mem interface {
	io.Closer
	Load32(offset uint32) uint32
	Store32(offset uint32, value uint32)
	// BusAddr is the address the DMA engine sees for offset 0.
	BusAddr() uint32
	Size() int
}

//Allocator hands out device visible memory.
type Allocator interface {
	Alloc(size int) (Mem, error)
}

//updateBits sets the bits of mask in the register at offset to the bits of value.
func updateBits(r Registers, offset, mask, value uint32) {
	cur := r.Read(offset)
	r.Write(offset, (cur&^mask)|(value&mask))
}
