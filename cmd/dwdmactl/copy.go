package main

import (
	"time"

	"github.com/DerLukas15/dwdma"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type testTransfer struct {
	segments int
	size     uint32
	src      uint32
	dst      uint32
	wait     time.Duration
}

// copyTest runs one memory to memory transfer through a freshly acquired channel and
// drains it again.
func copyTest(l *logrus.Logger, e *dwdma.Engine, t testTransfer) error {
	id, err := e.Acquire()
	if err != nil {
		return err
	}
	ll := l.WithField("channel", id)

	cfg := &dwdma.SGConfig{
		Direction: dwdma.MemToMem,
		SrcWidth:  dwdma.Width32,
		DestWidth: dwdma.Width32,
	}
	for i := 0; i < t.segments; i++ {
		cfg.Segments = append(cfg.Segments, dwdma.Segment{
			Src:  t.src + uint32(i)*t.size,
			Dest: t.dst + uint32(i)*t.size,
			Size: t.size,
		})
	}

	done := make(chan int, 1)
	err = e.SetCallback(id, func(data interface{}) {
		select {
		case done <- data.(int):
		default:
		}
	}, id)
	if err != nil {
		e.Release(id)
		return err
	}
	if err = e.SetConfig(id, cfg); err != nil {
		e.Release(id)
		return err
	}
	if err = e.Start(id); err != nil {
		e.Release(id)
		return err
	}
	ll.WithField("segments", t.segments).Info("Transfer started")

	select {
	case <-done:
		ll.Info("Block transfer complete")
	case <-time.After(t.wait):
		ll.Warn("No completion before timeout, aborting")
	}

	if err = e.Drain(id); err != nil {
		return err
	}
	deadline := time.Now().Add(t.wait)
	for {
		st, err := e.Status(id)
		if err != nil {
			return err
		}
		if st.State == dwdma.StateIdle {
			if st.Err != nil {
				ll.WithError(st.Err).Warn("Channel disabled without draining")
			}
			break
		}
		if time.Now().After(deadline) {
			return errors.Errorf("channel %d still %s after %s", id, st.State, t.wait)
		}
		time.Sleep(time.Millisecond)
	}
	ll.Info("Channel drained")
	return e.Release(id)
}
