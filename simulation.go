/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package economy

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/economy/model"
)

const (
	DefaultClockDocument = "clock.json"
	DefaultLeaderLease   = 15 * time.Second
)

// Leader guards the tick loop when several hosts share one store. The redis
// locker in internal/lock satisfies it.
type Leader interface {
	Lock(ctx context.Context, timeout time.Duration) error
	ExtendLock(ctx context.Context, extension time.Duration) error
	Unlock(ctx context.Context) error
}

type clockState struct {
	DayTime int64 `json:"day_time"`
}

// Simulation is the host loop for a standalone server: it advances the tick
// counter at a fixed interval and feeds it to the economy.
type Simulation struct {
	economy  *Economy
	interval time.Duration
	doc      *document

	mu        sync.Mutex
	dayTime   int64
	leader    Leader
	lease     time.Duration
	leading   bool
	renewedAt time.Time
}

func NewSimulation(e *Economy, interval time.Duration) *Simulation {
	if interval <= 0 {
		interval = time.Duration(e.Config.Simulation.TickIntervalMs) * time.Millisecond
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Simulation{
		economy:  e,
		interval: interval,
		doc:      newDocument(e.Store, "clock", DefaultClockDocument),
		lease:    DefaultLeaderLease,
	}
}

// SetLeader makes ticking conditional on holding the lease.
func (s *Simulation) SetLeader(leader Leader, lease time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leader = leader
	if lease > 0 {
		s.lease = lease
	}
}

// Restore reads the persisted tick counter and points the economy clock at it.
func (s *Simulation) Restore(ctx context.Context) error {
	var state clockState
	if err := s.doc.load(ctx, &state); err != nil {
		return err
	}
	s.mu.Lock()
	if state.DayTime > s.dayTime {
		s.dayTime = state.DayTime
	}
	dayTime := s.dayTime
	s.mu.Unlock()
	s.economy.Clock.Observe(dayTime)
	return nil
}

func (s *Simulation) DayTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayTime
}

// Leading reports whether this host is the one advancing time.
func (s *Simulation) Leading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leader == nil || s.leading
}

// Step advances time by one tick. It reports false when another host holds
// the lease.
func (s *Simulation) Step(ctx context.Context) bool {
	if !s.holdLease(ctx) {
		return false
	}
	s.mu.Lock()
	s.dayTime++
	dayTime := s.dayTime
	s.mu.Unlock()
	s.doc.markDirty()

	s.economy.Tick(ctx, dayTime)
	return true
}

func (s *Simulation) holdLease(ctx context.Context) bool {
	s.mu.Lock()
	leader, leading, renewedAt, lease := s.leader, s.leading, s.renewedAt, s.lease
	s.mu.Unlock()
	if leader == nil {
		return true
	}

	now := time.Now()
	if leading {
		if now.Sub(renewedAt) < lease/3 {
			return true
		}
		if err := leader.ExtendLock(ctx, lease); err != nil {
			logrus.Warnf("lost tick leadership: %v", err)
			s.setLeading(false, time.Time{})
			return false
		}
		s.setLeading(true, now)
		return true
	}

	if err := leader.Lock(ctx, lease); err != nil {
		return false
	}
	// The previous leader may have moved the world on since we last loaded it.
	if err := s.reload(ctx); err != nil {
		logrus.Errorf("failed to reload state after taking tick leadership: %v", err)
		_ = leader.Unlock(ctx)
		return false
	}
	logrus.Info("took tick leadership")
	s.setLeading(true, now)
	return true
}

func (s *Simulation) setLeading(leading bool, at time.Time) {
	s.mu.Lock()
	s.leading = leading
	s.renewedAt = at
	s.mu.Unlock()
}

func (s *Simulation) reload(ctx context.Context) error {
	if err := s.Restore(ctx); err != nil {
		return err
	}
	return s.economy.Load(ctx)
}

// Run ticks until ctx is cancelled, then gives up the lease.
func (s *Simulation) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.release()
			return nil
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

func (s *Simulation) release() {
	s.mu.Lock()
	leader, leading := s.leader, s.leading
	s.leading = false
	s.mu.Unlock()
	if leader == nil || !leading {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := leader.Unlock(ctx); err != nil {
		logrus.Warnf("failed to release tick leadership: %v", err)
	}
}

// Checkpoint saves the tick counter and every dirty component. Followers
// never write, so they cannot overwrite the leader's state.
func (s *Simulation) Checkpoint(ctx context.Context) error {
	if !s.Leading() {
		return nil
	}
	if s.doc.isDirty() {
		if err := s.saveClock(ctx); err != nil {
			return err
		}
	}
	return s.economy.SaveIfNeeded(ctx)
}

// Shutdown writes everything regardless of dirty flags.
func (s *Simulation) Shutdown(ctx context.Context) error {
	if !s.Leading() {
		return nil
	}
	if err := s.saveClock(ctx); err != nil {
		return err
	}
	return s.economy.SaveAll(ctx)
}

func (s *Simulation) saveClock(ctx context.Context) error {
	err := s.doc.save(ctx, func() interface{} {
		return clockState{DayTime: s.DayTime()}
	})
	if err != nil {
		logrus.Errorf("failed to save clock: %v", err)
	}
	return err
}

// Documents is every document a backup of this host should contain.
func (s *Simulation) Documents() []string {
	return append(s.economy.Documents(), DefaultClockDocument)
}

func (s *Simulation) HealthInfo() model.HealthInfo {
	return s.doc.info(1)
}
