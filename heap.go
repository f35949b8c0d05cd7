package dwdma

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

//heapAlign is the alignment of every block handed out by a HeapAllocator
const heapAlign = 32

//HeapAllocator is a device heap in process memory. Bus addresses are synthetic and
//start at the base given to NewHeapAllocator. It is used where the descriptor
//memory is shadowed by software, e.g. simulation and tests.
type HeapAllocator struct {
	mu    sync.Mutex
	next  uint32
	limit uint32
	holes []heapSpan // freed ranges below next, sorted by address and coalesced
	inUse int
}

type heapSpan struct {
	addr uint32
	size uint32
}

//NewHeapAllocator returns a heap spanning size bytes from bus address base.
func NewHeapAllocator(base, size uint32) *HeapAllocator {
	return &HeapAllocator{
		next:  alignUp(base, heapAlign),
		limit: base + size,
	}
}

//Alloc implements Allocator
func (h *HeapAllocator) Alloc(size int) (Mem, error) {
	if size <= 0 {
		return nil, errors.Errorf("heap alloc: invalid size %d", size)
	}
	span := alignUp64(uint64(size), heapAlign)
	h.mu.Lock()
	defer h.mu.Unlock()

	//first fit from the freed ranges
	for i, hole := range h.holes {
		if uint64(hole.size) < span {
			continue
		}
		addr := hole.addr
		if uint64(hole.size) == span {
			h.holes = append(h.holes[:i], h.holes[i+1:]...)
		} else {
			h.holes[i] = heapSpan{addr: hole.addr + uint32(span), size: hole.size - uint32(span)}
		}
		return h.block(addr, uint32(span), size), nil
	}

	addr := h.next
	end := uint64(addr) + span
	if end > uint64(h.limit) {
		return nil, errors.Errorf("heap alloc: %d bytes exhausts heap", size)
	}
	h.next = uint32(end)
	return h.block(addr, uint32(span), size), nil
}

//block hands out a new block. h.mu must be held.
func (h *HeapAllocator) block(addr, span uint32, size int) *heapMem {
	h.inUse++
	return &heapMem{heap: h, buf: make([]byte, size), busAddr: addr, span: span}
}

//InUse returns the number of blocks not yet closed
func (h *HeapAllocator) InUse() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

//Free returns the number of bytes available for new blocks
func (h *HeapAllocator) Free() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := int(h.limit - h.next)
	if h.limit < h.next {
		n = 0
	}
	for _, hole := range h.holes {
		n += int(hole.size)
	}
	return n
}

//free gives the range back to the heap, merging it with its neighbours
func (h *HeapAllocator) free(addr, span uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inUse--

	i := sort.Search(len(h.holes), func(i int) bool { return h.holes[i].addr > addr })
	h.holes = append(h.holes, heapSpan{})
	copy(h.holes[i+1:], h.holes[i:])
	h.holes[i] = heapSpan{addr: addr, size: span}

	if i+1 < len(h.holes) && h.holes[i].addr+h.holes[i].size == h.holes[i+1].addr {
		h.holes[i].size += h.holes[i+1].size
		h.holes = append(h.holes[:i+1], h.holes[i+2:]...)
	}
	if i > 0 && h.holes[i-1].addr+h.holes[i-1].size == h.holes[i].addr {
		h.holes[i-1].size += h.holes[i].size
		h.holes = append(h.holes[:i], h.holes[i+1:]...)
		i--
	}
	//a range ending at the top of the heap goes back to the unused tail
	if last := h.holes[len(h.holes)-1]; last.addr+last.size == h.next {
		h.next = last.addr
		h.holes = h.holes[:len(h.holes)-1]
	}
}

type heapMem struct {
	heap    *HeapAllocator
	buf     []byte
	busAddr uint32
	span    uint32 // size rounded up to heapAlign
	closed  bool
}

func (m *heapMem) Load32(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(m.buf[offset:])
}

func (m *heapMem) Store32(offset uint32, value uint32) {
	binary.LittleEndian.PutUint32(m.buf[offset:], value)
}

func (m *heapMem) BusAddr() uint32 {
	return m.busAddr
}

func (m *heapMem) Size() int {
	return len(m.buf)
}

func (m *heapMem) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.heap.free(m.busAddr, m.span)
	return nil
}

func (m *heapMem) String() string {
	return fmt.Sprintf("heap block 0x%08x (%d bytes)", m.busAddr, len(m.buf))
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

func alignUp64(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
