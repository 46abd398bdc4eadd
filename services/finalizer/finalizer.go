package finalizer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"tokensale/core/types"
	"tokensale/crypto"
	"tokensale/native/sale"
)

// ScheduleParser parses the six-field cron syntax with a mandatory seconds
// field. Register and config validation both use it.
var ScheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether Register would accept schedule.
func ValidateSchedule(schedule string) error {
	_, err := ScheduleParser.Parse(schedule)
	return err
}

// Target is the part of the node the finalizer drives.
type Target interface {
	Now() types.BlockTime
	EndBlock() uint64
	Finalize(caller [20]byte) (*sale.Finalization, error)
}

// Service finalizes the auction once the chain passes its end block. It runs
// as a cron job so operators control how often the height is polled.
type Service struct {
	cron   *cron.Cron
	target Target
	caller [20]byte
	logger *slog.Logger

	mu   sync.Mutex
	done bool
}

func New(target Target, caller [20]byte, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cron:   cron.New(cron.WithParser(ScheduleParser)),
		target: target,
		caller: caller,
		logger: logger.With(slog.String("component", "finalizer")),
	}
}

// Register schedules the finalize check. schedule uses the six-field cron
// syntax with seconds.
func (s *Service) Register(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("register finalize job: %w", err)
	}
	return nil
}

func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("finalizer started")
}

// Stop halts the scheduler and waits for a running check to return.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("finalizer stopped")
}

// Done reports whether the sale has been observed as finalized.
func (s *Service) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Service) run() {
	if _, err := s.Tick(); err != nil {
		s.logger.Error("finalize attempt failed", slog.Any("error", err))
	}
}

// Tick finalizes the sale when the auction is over. It reports whether the
// sale is finalized after the call. A sale finalized by someone else counts as
// done.
func (s *Service) Tick() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return true, nil
	}
	now := s.target.Now()
	if now.Height < s.target.EndBlock() {
		return false, nil
	}
	record, err := s.target.Finalize(s.caller)
	switch {
	case errors.Is(err, sale.ErrAlreadyFinalized):
		s.done = true
		return true, nil
	case err != nil:
		return false, err
	}
	s.done = true
	s.logger.Info("auction finalized",
		slog.Uint64("height", record.Height),
		slog.String("caller", crypto.FormatAddress(s.caller)),
		slog.String("allocator", crypto.FormatAddress(record.Allocator)))
	return true, nil
}
