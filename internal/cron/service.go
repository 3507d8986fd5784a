// Package cron schedules the recurring maintenance pass.
package cron

import (
	"context"
	"fmt"
	"log"
	"sync"

	rcron "github.com/robfig/cron/v3"
)

// Service runs a single maintenance job on a 6-field cron schedule
// (seconds included, e.g. "0 0 4 * * *" for 4am daily).
type Service struct {
	schedule string
	job      func(ctx context.Context) error

	mu     sync.Mutex
	cron   *rcron.Cron
	cancel context.CancelFunc
}

func NewService(schedule string, job func(ctx context.Context) error) *Service {
	return &Service{schedule: schedule, job: job}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	c := rcron.New(rcron.WithSeconds())
	_, err := c.AddFunc(s.schedule, func() {
		if err := s.job(runCtx); err != nil {
			log.Printf("[cron] maintenance run failed: %v", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("register maintenance schedule %q: %w", s.schedule, err)
	}

	s.mu.Lock()
	s.cron = c
	s.cancel = cancel
	s.mu.Unlock()

	c.Start()
	log.Printf("[cron] maintenance scheduled: %s", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
