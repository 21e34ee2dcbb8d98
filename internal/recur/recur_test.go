package recur

import (
	"testing"
	"time"

	"corun/internal/driver"
	logx "corun/pkg/logx"
	"corun/pkg/routine"
)

func newService() *Service {
	sched := routine.New()
	drv := driver.New(sched, driver.Config{TickInterval: time.Millisecond}, logx.Nop())
	return New(drv, logx.Nop())
}

func TestAddValidatesSchedule(t *testing.T) {
	t.Parallel()
	s := newService()

	job := Job{
		Name:     "ok",
		Schedule: "*/5 * * * *",
		Make:     func() routine.Unit { return routine.Prog(routine.Func(func(*routine.Turn) error { return nil })) },
	}
	if err := s.Add(job); err != nil {
		t.Fatalf("Add: %v", err)
	}

	job.Schedule = "not a schedule"
	if err := s.Add(job); err == nil {
		t.Fatal("bad schedule should be rejected")
	}
}

func TestAddRequiresProgram(t *testing.T) {
	t.Parallel()
	s := newService()

	if err := s.Add(Job{Name: "empty", Schedule: "* * * * *"}); err == nil {
		t.Fatal("job without a program should be rejected")
	}
}
