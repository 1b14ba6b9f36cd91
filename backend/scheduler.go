// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the periodic maintenance jobs: flushing unsaved
// tournaments, purging expired tombstones and sampling request rates.
type Scheduler struct {
	s       gocron.Scheduler
	store   *TournamentStore
	r       *Registry
	metrics *Metrics
}

// NewScheduler creates the scheduler. metrics may be nil.
func NewScheduler(store *TournamentStore, r *Registry, metrics *Metrics) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{s: s, store: store, r: r, metrics: metrics}, nil
}

func (s *Scheduler) Start() error {
	if _, err := s.s.NewJob(
		gocron.DurationJob(flushInterval),
		gocron.NewTask(s.flush),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to create flush job: %w", err)
	}
	if _, err := s.s.NewJob(
		gocron.DurationJob(purgeInterval),
		gocron.NewTask(s.purge),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to create purge job: %w", err)
	}
	if s.metrics != nil {
		if _, err := s.s.NewJob(
			gocron.DurationJob(rateResolution),
			gocron.NewTask(func() { s.metrics.Sample(time.Now()) }),
		); err != nil {
			return fmt.Errorf("failed to create metrics job: %w", err)
		}
	}
	s.s.Start()
	return nil
}

// Stop stops the jobs and flushes once more.
func (s *Scheduler) Stop() error {
	err := s.s.Shutdown()
	s.flush()
	return err
}

func (s *Scheduler) flush() {
	if err := s.store.FlushAll(); err != nil {
		log.Printf("Scheduler: flush failed: %v", err)
	}
}

func (s *Scheduler) purge() {
	s.r.PurgeOldTombstones()
}
