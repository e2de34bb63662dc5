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
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/economy/config"
)

var ErrInvalidPriceEvent = errors.New("price event needs a positive multiplier and an end day after its start")

// PriceEvent scales prices of one item kind, or every kind when Kind is
// empty, from StartDay up to and including EndDay.
type PriceEvent struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind,omitempty"`
	Multiplier float64 `json:"multiplier"`
	StartDay   int64   `json:"start_day"`
	EndDay     int64   `json:"end_day"`
}

func (e PriceEvent) activeOn(kind string, day int64) bool {
	return day >= e.StartDay && day <= e.EndDay && (e.Kind == "" || e.Kind == kind)
}

// PricingEngine derives a price multiplier per item kind from a slow wave over
// the days, offset per kind, times any active events, clamped to a band.
type PricingEngine struct {
	mu     sync.RWMutex
	cfg    config.PricingConfig
	events []PriceEvent
}

func NewPricingEngine(cfg config.PricingConfig) *PricingEngine {
	if cfg.MinMultiplier <= 0 {
		cfg.MinMultiplier = 0.5
	}
	if cfg.MaxMultiplier < cfg.MinMultiplier {
		cfg.MaxMultiplier = 2.0
	}
	if cfg.PeriodDays <= 0 {
		cfg.PeriodDays = 28
	}
	return &PricingEngine{cfg: cfg}
}

func phase(kind string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(kind))
	return float64(h.Sum32()%360) * math.Pi / 180
}

func (p *PricingEngine) wave(kind string, day int64) float64 {
	angle := 2*math.Pi*float64(day%p.cfg.PeriodDays)/float64(p.cfg.PeriodDays) + phase(kind)
	return 1 + p.cfg.Amplitude*math.Sin(angle)
}

func (p *PricingEngine) clamp(m float64) float64 {
	return math.Min(math.Max(m, p.cfg.MinMultiplier), p.cfg.MaxMultiplier)
}

// Multiplier is the clamped factor for kind on day, rounded to 4 places.
func (p *PricingEngine) Multiplier(kind string, day int64) float64 {
	m := p.wave(kind, day)
	p.mu.RLock()
	for _, e := range p.events {
		if e.activeOn(kind, day) {
			m *= e.Multiplier
		}
	}
	p.mu.RUnlock()
	return decimal.NewFromFloat(p.clamp(m)).Round(4).InexactFloat64()
}

// Price applies the multiplier to a base price, rounded to cents.
func (p *PricingEngine) Price(kind string, base float64, day int64) float64 {
	if !finite(base) || base <= 0 {
		return 0
	}
	return decimal.NewFromFloat(base).Mul(decimal.NewFromFloat(p.Multiplier(kind, day))).Round(2).InexactFloat64()
}

func (p *PricingEngine) AddEvent(e PriceEvent) error {
	if !finite(e.Multiplier) || e.Multiplier <= 0 || e.EndDay < e.StartDay {
		return ErrInvalidPriceEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// ActiveEvents lists the events running on day, by start day.
func (p *PricingEngine) ActiveEvents(day int64) []PriceEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []PriceEvent
	for _, e := range p.events {
		if day >= e.StartDay && day <= e.EndDay {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDay < out[j].StartDay })
	return out
}

// PruneEvents drops events that ended before day and returns how many were removed.
func (p *PricingEngine) PruneEvents(day int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.events[:0]
	for _, e := range p.events {
		if e.EndDay >= day {
			kept = append(kept, e)
		}
	}
	removed := len(p.events) - len(kept)
	p.events = kept
	return removed
}
