package dwdma

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Device paths.
const (
	uioMapSize = "/sys/class/uio/uio%d/maps/map0/size"
	uioDevice  = "/dev/uio%d"
)

//UIO is a DMA engine exported to user space by the uio_pdrv_genirq driver. The first
//memory map is the register window and the device file delivers the interrupt.
type UIO struct {
	file *os.File
	mem  []byte
	l    *logrus.Logger

	mu        sync.Mutex
	handler   func()
	closeOnce sync.Once
}

//OpenUIO maps the registers of /dev/uio<index>. A nil l logs to the standard logger.
func OpenUIO(index int, l *logrus.Logger) (*UIO, error) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	size, err := readDriverValue(fmt.Sprintf(uioMapSize, index))
	if err != nil {
		return nil, err
	}
	if size < int(registerWindowSize) {
		return nil, errors.Errorf("uio%d: register window too small (%d bytes)", index, size)
	}
	name := fmt.Sprintf(uioDevice, index)
	f, err := os.OpenFile(name, os.O_RDWR|os.O_SYNC, 0660)
	if err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, name)
	}
	return &UIO{file: f, mem: mem, l: l}, nil
}

// Read implements Registers
func (u *UIO) Read(offset uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&u.mem[offset])))
}

// Write implements Registers
func (u *UIO) Write(offset uint32, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&u.mem[offset])), value)
}

// Register implements InterruptLine. The handler runs on a goroutine blocked
// on the device file.
func (u *UIO) Register(handler func()) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.handler != nil {
		return errors.New("interrupt handler already registered")
	}
	u.handler = handler
	go u.interruptReader()
	return nil
}

// Enable implements InterruptLine
func (u *UIO) Enable() {
	u.irqControl(1)
}

// Disable implements InterruptLine
func (u *UIO) Disable() {
	u.irqControl(0)
}

// Ack implements InterruptLine. Reading the event count already acknowledged the interrupt.
func (u *UIO) Ack() {}

// Close unmaps the registers and closes the device, which also stops the interrupt reader.
func (u *UIO) Close() error {
	var err error
	u.closeOnce.Do(func() {
		err = unix.Munmap(u.mem)
		if cerr := u.file.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// irqControl writes to the device file to mask or unmask the interrupt.
func (u *UIO) irqControl(v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	if _, err := u.file.Write(b); err != nil {
		u.l.WithError(err).WithField("enable", v).Error("Failed to switch UIO interrupt")
	}
}

// interruptReader blocks on the device and runs the handler each time
// the interrupt count advances.
func (u *UIO) interruptReader() {
	b := make([]byte, 4)
	for {
		n, err := u.file.Read(b)
		if err != nil {
			// Assume device has been closed.
			return
		}
		if n == 4 {
			u.handler()
		}
	}
}

// readDriverValue opens and reads a string from a device file and decodes
// the string as an integer.
func readDriverValue(s string) (int, error) {
	var val int
	f, err := os.Open(s)
	if err != nil {
		return -1, err
	}
	defer f.Close()
	n, err := fmt.Fscanf(f, "%v", &val)
	if err != nil {
		return -1, errors.Wrap(err, s)
	}
	if n != 1 {
		return -1, errors.Errorf("%s: no value found", s)
	}
	return val, nil
}

var (
	_ Registers     = &UIO{}
	_ InterruptLine = &UIO{}
)
