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
	"sync"
)

const (
	// DefaultTicksPerDay is the number of host ticks in one in-game day.
	DefaultTicksPerDay int64 = 24000

	// MaxFailures is the number of consecutive failed executions after which an
	// obligation is deactivated.
	MaxFailures = 3
)

// Day converts a raw tick counter into a day number. Negative counters map to day 0.
func Day(dayTime, ticksPerDay int64) int64 {
	if ticksPerDay <= 0 {
		ticksPerDay = DefaultTicksPerDay
	}
	if dayTime < 0 {
		return 0
	}
	return dayTime / ticksPerDay
}

// Clock remembers the most recent tick counter seen by the economy so that
// player commands issued between ticks know which day it is.
type Clock struct {
	mu          sync.RWMutex
	ticksPerDay int64
	dayTime     int64
}

func NewClock(ticksPerDay int64) *Clock {
	if ticksPerDay <= 0 {
		ticksPerDay = DefaultTicksPerDay
	}
	return &Clock{ticksPerDay: ticksPerDay}
}

// Observe records dayTime. Values older than the latest observation are ignored.
func (c *Clock) Observe(dayTime int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dayTime > c.dayTime {
		c.dayTime = dayTime
	}
}

func (c *Clock) DayTime() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dayTime
}

// Today is the day of the latest observed tick.
func (c *Clock) Today() int64 {
	return c.Day(c.DayTime())
}

func (c *Clock) Day(dayTime int64) int64 {
	return Day(dayTime, c.ticksPerDay)
}

func (c *Clock) TicksPerDay() int64 {
	return c.ticksPerDay
}

// dayGate lets a processor through once per day. Callers hold the processor lock.
type dayGate struct {
	last int64
}

func newDayGate() dayGate {
	return dayGate{last: -1}
}

// Enter reports whether day has not been processed yet and marks it processed.
func (g *dayGate) Enter(day int64) bool {
	if day <= g.last {
		return false
	}
	g.last = day
	return true
}

func (g *dayGate) Last() int64 {
	return g.last
}
