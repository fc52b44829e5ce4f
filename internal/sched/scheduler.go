// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sched holds the queue configuration of the cluster scheduler
// and reinitializes it when the queue definitions change.
package sched

import (
	"sync"

	"grimm.is/foreman/internal/config"
	"grimm.is/foreman/internal/errors"
	"grimm.is/foreman/internal/logging"
)

// Scheduler is anything whose queue layout can be rebuilt in place.
type Scheduler interface {
	Reinitialize() error
}

// Queue is one normalized scheduler queue.
type Queue struct {
	Name  string
	Share float64
}

// QueueScheduler derives scheduler queues from configuration. Queue
// weights are normalized into fractional shares on every
// reinitialization.
type QueueScheduler struct {
	load func() (*config.SchedulerConfig, error)
	log  *logging.Logger

	mu     sync.RWMutex
	queues []Queue
}

// NewQueueScheduler builds a scheduler pulling queue definitions from
// load. The initial layout is installed immediately.
func NewQueueScheduler(load func() (*config.SchedulerConfig, error), log *logging.Logger) (*QueueScheduler, error) {
	s := &QueueScheduler{load: load, log: log.With("component", "sched")}
	if err := s.Reinitialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reinitialize reloads the queue definitions and rebuilds the layout.
// On error the previous layout stays in effect.
func (s *QueueScheduler) Reinitialize() error {
	cfg, err := s.load()
	if err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "failed to reload queue definitions")
	}

	queues := buildQueues(cfg)

	s.mu.Lock()
	s.queues = queues
	s.mu.Unlock()
	s.log.Info("scheduler queues reinitialized", "queues", len(queues))
	return nil
}

// Queues returns the current layout.
func (s *QueueScheduler) Queues() []Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Queue(nil), s.queues...)
}

// buildQueues normalizes configured weights into shares summing to 1.
// Zero-weight queues count as weight 1. With no configuration a single
// "default" queue owns the whole cluster.
func buildQueues(cfg *config.SchedulerConfig) []Queue {
	if cfg == nil || len(cfg.Queues) == 0 {
		return []Queue{{Name: "default", Share: 1}}
	}

	total := 0.0
	weights := make([]float64, len(cfg.Queues))
	for i, q := range cfg.Queues {
		w := q.Weight
		if w == 0 {
			w = 1
		}
		weights[i] = w
		total += w
	}

	queues := make([]Queue, len(cfg.Queues))
	for i, q := range cfg.Queues {
		queues[i] = Queue{Name: q.Name, Share: weights[i] / total}
	}
	return queues
}
