package main

import (
	"github.com/sirupsen/logrus"

	"github.com/DerLukas15/dwdma"
)

// openUIO uses the uio device for registers and interrupts. The engine closes the
// device together with its interrupt line.
func openUIO(c *dwdma.Config, l *logrus.Logger) (dwdma.Hardware, func(), error) {
	u, err := dwdma.OpenUIO(c.UIO, l)
	if err != nil {
		return dwdma.Hardware{}, nil, err
	}
	alloc, err := dwdma.NewUncachedAllocator()
	if err != nil {
		u.Close()
		return dwdma.Hardware{}, nil, err
	}
	return dwdma.Hardware{
		Regs:  u,
		IRQ:   u,
		Alloc: alloc,
	}, func() { u.Close() }, nil
}
