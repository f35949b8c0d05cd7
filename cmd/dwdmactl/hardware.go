package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/DerLukas15/dwdma"
	"github.com/DerLukas15/dwdma/sim"
)

// simHeapBase is where the simulated device heap places descriptors
const simHeapBase = 0xbe000000

// openHardware builds the collaborators for the configured backend. The returned
// func releases what the engine does not own.
func openHardware(c *dwdma.Config, l *logrus.Logger) (dwdma.Hardware, func(), error) {
	switch c.Backend {
	case "sim":
		ctrl := sim.New(sim.Options{AutoComplete: true, DrainOnSuspend: true})
		return dwdma.Hardware{
			Regs:  ctrl,
			IRQ:   ctrl,
			Alloc: dwdma.NewHeapAllocator(simHeapBase, 1<<20),
		}, func() {}, nil

	case "rpi":
		regs, err := dwdma.NewPeripheralRegisters(c.Peripheral)
		if err != nil {
			return dwdma.Hardware{}, nil, err
		}
		alloc, err := dwdma.NewUncachedAllocator()
		if err != nil {
			regs.Close()
			return dwdma.Hardware{}, nil, err
		}
		return dwdma.Hardware{
			Regs:  regs,
			IRQ:   dwdma.PollInterrupts(regs, c.Tick),
			Alloc: alloc,
		}, func() { regs.Close() }, nil

	case "uio":
		return openUIO(c, l)
	}
	return dwdma.Hardware{}, nil, fmt.Errorf("unknown backend %q", c.Backend)
}
