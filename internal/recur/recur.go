// Package recur fires routines on cron schedules. Each job spawns a fresh
// routine per trigger; a trigger that lands while the previous run is still
// active is skipped rather than overlapped.
package recur

import (
	"fmt"
	"sync"

	cron "github.com/robfig/cron/v3"

	"corun/internal/driver"
	logx "corun/pkg/logx"
	"corun/pkg/routine"
)

// Job describes one recurring routine. Make is called per trigger so each
// run gets its own program state.
type Job struct {
	Name     string
	Schedule string
	Make     func() routine.Unit
}

type Service struct {
	log    logx.Logger
	drv    *driver.Driver
	parser cron.Parser
	c      *cron.Cron

	mu   sync.Mutex
	last map[string]routine.Handle
}

func New(drv *driver.Driver, log logx.Logger) *Service {
	s := &Service{
		log:    log,
		drv:    drv,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		last:   make(map[string]routine.Handle),
	}
	s.c = cron.New(cron.WithParser(s.parser))
	return s
}

func (s *Service) Add(job Job) error {
	if job.Make == nil {
		return fmt.Errorf("recur: job %q has no program", job.Name)
	}
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("recur: job %q: bad schedule %q: %w", job.Name, job.Schedule, err)
	}
	_, err := s.c.AddFunc(job.Schedule, func() { s.fire(job) })
	return err
}

func (s *Service) Start() { s.c.Start() }

// Stop halts triggering. Already-spawned routines keep running until the
// driver stops them.
func (s *Service) Stop() {
	<-s.c.Stop().Done()
}

func (s *Service) fire(job Job) {
	err := s.drv.Do(func(sc *routine.Scheduler) {
		s.mu.Lock()
		prev, ok := s.last[job.Name]
		s.mu.Unlock()
		if ok && !prev.Done() {
			if !s.log.IsZero() {
				s.log.Debug("job still running; trigger skipped", logx.String("job", job.Name))
			}
			return
		}
		h := sc.Spawn(job.Make(), routine.WithContext(job.Name))
		s.mu.Lock()
		s.last[job.Name] = h
		s.mu.Unlock()
	})
	if err != nil && !s.log.IsZero() {
		s.log.Warn("job trigger dropped", logx.String("job", job.Name), logx.Err(err))
	}
}
