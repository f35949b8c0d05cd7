package dwdma

import (
	"sync"
	"time"
)

//TimerScheduler runs tasks on the runtime timer goroutines. A task returning true is run
//again after Tick.
type TimerScheduler struct {
	Tick time.Duration

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

//NewTimerScheduler returns a scheduler with the given tick. A tick of 0 means one millisecond.
func NewTimerScheduler(tick time.Duration) *TimerScheduler {
	if tick <= 0 {
		tick = time.Millisecond
	}
	return &TimerScheduler{
		Tick:   tick,
		timers: make(map[*time.Timer]struct{}),
	}
}

//Schedule implements Scheduler
func (s *TimerScheduler) Schedule(t Task, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		if t() {
			s.Schedule(t, s.Tick)
		}
	})
	s.timers[timer] = struct{}{}
}

//Stop cancels all pending tasks. Tasks already running finish but are not rescheduled.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = nil
}
