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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_ledger_operations_total",
			Help: "Ledger operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	obligationOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_obligation_outcomes_total",
			Help: "Scheduled obligation executions by processor and outcome",
		},
		[]string{"processor", "outcome"},
	)

	componentHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "economy_component_healthy",
			Help: "1 when the component's last persistence operation succeeded",
		},
		[]string{"component"},
	)

	persistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "economy_persist_duration_seconds",
			Help:    "Duration of document saves",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"component"},
	)

	moneySupply = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "economy_money_supply",
			Help: "Sum of all ledger balances at the last tick",
		},
	)

	currentDay = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "economy_current_day",
			Help: "Latest in-game day processed",
		},
	)
)

const (
	resultOK       = "ok"
	resultRejected = "rejected"

	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeDeactivated = "deactivated"
	outcomeCompleted   = "completed"
)

func observeLedger(operation string, ok bool) {
	result := resultOK
	if !ok {
		result = resultRejected
	}
	ledgerOperationsTotal.WithLabelValues(operation, result).Inc()
}

func observeObligation(processor, outcome string) {
	obligationOutcomesTotal.WithLabelValues(processor, outcome).Inc()
}

func observePersist(component string, started time.Time, err error) {
	persistDuration.WithLabelValues(component).Observe(time.Since(started).Seconds())
	if err != nil {
		componentHealthy.WithLabelValues(component).Set(0)
		return
	}
	componentHealthy.WithLabelValues(component).Set(1)
}
