package worker

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyStarted is returned when Start is called on a running supervisor.
var ErrAlreadyStarted = errors.New("worker supervisor already started")

// runner is a long-lived background loop with blocking Run and Stop.
type runner interface {
	Run()
	Stop()
}

// Supervisor owns the process's background loops: the event worker, the
// delivery retry scheduler, and optionally the digest scheduler. It exists so
// there is exactly one of each per process; a second Start is refused rather
// than silently ignored.
type Supervisor struct {
	started atomic.Bool
	loops   []runner
	wg      sync.WaitGroup
}

// NewSupervisor wires the given loops. Nil entries are skipped, which is how
// the digest scheduler stays off when unconfigured.
func NewSupervisor(loops ...runner) *Supervisor {
	s := &Supervisor{}
	for _, l := range loops {
		if l != nil {
			s.loops = append(s.loops, l)
		}
	}
	return s
}

// Start launches every loop on its own goroutine. Only the first call wins.
func (s *Supervisor) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	for _, l := range s.loops {
		loop := l
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			loop.Run()
		}()
	}
	log.Info().Int("loops", len(s.loops)).Msg("Supervisor started background loops")
	return nil
}

// Stop signals every loop and waits for in-flight cycles to finish.
func (s *Supervisor) Stop() {
	if !s.started.Load() {
		return
	}
	for _, l := range s.loops {
		l.Stop()
	}
	s.wg.Wait()
}
