// Package watcher periodically classifies every registered machine and
// raises an alert when one goes online or offline.
package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vending-panel-backend/internal/notification"
	"vending-panel-backend/internal/status"
	"vending-panel-backend/internal/store"
)

// Dispatcher receives status alerts.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert notification.Alert) error
}

// Service runs the status sweep.
type Service struct {
	store      store.Store
	evaluator  status.Evaluator
	dispatcher Dispatcher
	interval   time.Duration
	log        *zap.Logger
	now        func() time.Time

	mu   sync.Mutex
	last map[string]status.Status
}

// NewService creates a watcher. dispatcher may be nil, in which case
// transitions are only logged.
func NewService(st store.Store, ev status.Evaluator, dispatcher Dispatcher, interval time.Duration, log *zap.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:      st,
		evaluator:  ev,
		dispatcher: dispatcher,
		interval:   interval,
		log:        log,
		now:        time.Now,
		last:       make(map[string]status.Status),
	}
}

// Run sweeps immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("starting machine watcher", zap.Duration("interval", s.interval))
	s.SweepOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("machine watcher shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce classifies every registered machine and dispatches an alert for
// each one whose status differs from the previous sweep. A machine seen for
// the first time never alerts. It returns the alerts raised.
func (s *Service) SweepOnce(ctx context.Context) []notification.Alert {
	ids, err := s.store.ListMachineIDs(ctx)
	if err != nil {
		s.log.Error("watcher could not list machines", zap.Error(err))
		return nil
	}

	now := s.now()
	var alerts []notification.Alert

	s.mu.Lock()
	current := make(map[string]status.Status, len(ids))
	for _, mid := range ids {
		info, err := s.store.GetMachineInfo(ctx, mid)
		if err != nil {
			// Keep the previous state so a failed read is not a transition.
			s.log.Warn("watcher could not read machine info", zap.String("machine_id", mid), zap.Error(err))
			if prev, ok := s.last[mid]; ok {
				current[mid] = prev
			}
			continue
		}

		st := s.evaluator.Classify(info, now)
		current[mid] = st

		prev, seen := s.last[mid]
		if !seen || prev == st {
			continue
		}
		alert := notification.Alert{MachineID: mid, Status: st}
		if info != nil {
			alert.Location = info.Location
		}
		alerts = append(alerts, alert)
	}
	s.last = current
	s.mu.Unlock()

	for _, alert := range alerts {
		s.log.Info("machine status changed", zap.String("machine_id", alert.MachineID), zap.String("status", string(alert.Status)))
		if s.dispatcher == nil {
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, alert); err != nil {
			s.log.Warn("alert not dispatched", zap.String("machine_id", alert.MachineID), zap.Error(err))
		}
	}
	return alerts
}
