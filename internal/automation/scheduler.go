package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5-field expressions, 6-field expressions with a leading
// seconds field, and descriptors such as @hourly.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// scheduler arms time-based triggers on a cron runner. Entries are tracked
// so removeAll tears down exactly what this engine added.
type scheduler struct {
	cron *cron.Cron
	loc  *time.Location

	mu      sync.Mutex
	entries []cron.EntryID
}

func newScheduler(loc *time.Location, logger Logger) *scheduler {
	return &scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		loc: loc,
	}
}

// add arms one cron, time or interval trigger.
func (s *scheduler) add(t Trigger, job func()) error {
	sched, err := scheduleFor(t)
	if err != nil {
		return err
	}
	id := s.cron.Schedule(sched, cron.FuncJob(job))

	s.mu.Lock()
	s.entries = append(s.entries, id)
	s.mu.Unlock()
	return nil
}

// removeAll disarms every entry. Safe to call repeatedly.
func (s *scheduler) removeAll() {
	s.mu.Lock()
	ids := s.entries
	s.entries = nil
	s.mu.Unlock()

	for _, id := range ids {
		s.cron.Remove(id)
	}
}

func (s *scheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *scheduler) start() {
	s.cron.Start()
}

// stop halts the runner and returns a context done once running jobs exit.
func (s *scheduler) stop() context.Context {
	return s.cron.Stop()
}

// isScheduled reports whether the trigger is armed on the scheduler rather
// than matched against bridge events.
func isScheduled(t Trigger) bool {
	switch t.Type {
	case TriggerCron, TriggerTime, TriggerInterval:
		return true
	default:
		return false
	}
}

func scheduleFor(t Trigger) (cron.Schedule, error) {
	switch t.Type {
	case TriggerCron:
		sched, err := cronParser.Parse(t.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: cron expression %q: %w", ErrValidation, t.Expression, err)
		}
		return sched, nil
	case TriggerTime:
		minutes, err := parseClock(t.At)
		if err != nil {
			return nil, err
		}
		return cronParser.Parse(fmt.Sprintf("%d %d * * *", minutes%60, minutes/60))
	case TriggerInterval:
		if t.Seconds <= 0 {
			return nil, fmt.Errorf("%w: interval seconds must be positive", ErrValidation)
		}
		return cron.Every(time.Duration(t.Seconds) * time.Second), nil
	default:
		return nil, fmt.Errorf("%w: trigger type %q is not scheduled", ErrValidation, t.Type)
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
