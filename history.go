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
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

const (
	DefaultHistoryLimit         = 1000
	DefaultTransactionsDocument = "transactions.json"
)

// History is a bounded per-account transaction log. Readers only ever see the
// newest limit records. Evicted records are dropped in batches once a log holds
// a quarter more than the limit.
type History struct {
	mu    sync.RWMutex
	logs  map[string][]model.TransactionRecord
	limit int
	doc   *document
}

func NewHistory(store database.Store, documentName string, limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if documentName == "" {
		documentName = DefaultTransactionsDocument
	}
	return &History{
		logs:  make(map[string][]model.TransactionRecord),
		limit: limit,
		doc:   newDocument(store, "history", documentName),
	}
}

func (h *History) AddTransaction(id string, record model.TransactionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	log := append(h.logs[id], record)
	if len(log) > h.limit+h.limit/4 {
		log = append(make([]model.TransactionRecord, 0, h.limit+h.limit/4+1), log[len(log)-h.limit:]...)
	}
	h.logs[id] = log
	h.doc.markDirty()
}

// GetTransactions returns the log oldest first.
func (h *History) GetTransactions(id string) []model.TransactionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.TransactionRecord(nil), h.windowLocked(id)...)
}

// windowLocked is the visible part of an account's log.
func (h *History) windowLocked(id string) []model.TransactionRecord {
	log := h.logs[id]
	if over := len(log) - h.limit; over > 0 {
		return log[over:]
	}
	return log
}

// GetRecentTransactions returns up to limit records, newest first.
func (h *History) GetRecentTransactions(id string, limit int) []model.TransactionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	log := h.windowLocked(id)
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	out := make([]model.TransactionRecord, 0, limit)
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out
}

func (h *History) GetTransactionsByType(id string, txType model.TransactionType) []model.TransactionRecord {
	return h.filter(id, func(r model.TransactionRecord) bool { return r.Type == txType })
}

// GetTransactionsBetween returns records with from <= timestamp <= to.
func (h *History) GetTransactionsBetween(id string, from, to time.Time) []model.TransactionRecord {
	return h.filter(id, func(r model.TransactionRecord) bool {
		return !r.Timestamp.Before(from) && !r.Timestamp.After(to)
	})
}

func (h *History) filter(id string, keep func(model.TransactionRecord) bool) []model.TransactionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []model.TransactionRecord
	for _, r := range h.windowLocked(id) {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (h *History) GetTotalIncome(id string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := decimal.Zero
	for _, r := range h.windowLocked(id) {
		if r.Amount > 0 {
			total = total.Add(decimal.NewFromFloat(r.Amount))
		}
	}
	return total.InexactFloat64()
}

func (h *History) GetTotalExpenses(id string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := decimal.Zero
	for _, r := range h.windowLocked(id) {
		if r.Amount < 0 {
			total = total.Add(decimal.NewFromFloat(math.Abs(r.Amount)))
		}
	}
	return total.InexactFloat64()
}

func (h *History) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.logs[id]; ok {
		delete(h.logs, id)
		h.doc.markDirty()
	}
}

func (h *History) Save(ctx context.Context) error {
	err := h.doc.save(ctx, func() interface{} {
		h.mu.RLock()
		defer h.mu.RUnlock()
		snapshot := make(map[string][]model.TransactionRecord, len(h.logs))
		for id := range h.logs {
			snapshot[id] = append([]model.TransactionRecord(nil), h.windowLocked(id)...)
		}
		return snapshot
	})
	if err != nil {
		logrus.Errorf("failed to save transaction history: %v", err)
	}
	return err
}

func (h *History) SaveIfNeeded(ctx context.Context) error {
	if !h.doc.isDirty() {
		return nil
	}
	return h.Save(ctx)
}

func (h *History) Load(ctx context.Context) error {
	stored := make(map[string][]model.TransactionRecord)
	if err := h.doc.load(ctx, &stored); err != nil {
		logrus.Errorf("failed to load transaction history: %v", err)
		return err
	}
	for id, log := range stored {
		if over := len(log) - h.limit; over > 0 {
			stored[id] = log[over:]
		}
	}

	h.mu.Lock()
	h.logs = stored
	h.mu.Unlock()
	return nil
}

func (h *History) IsHealthy() bool {
	return h.doc.healthy()
}

func (h *History) LastError() error {
	return h.doc.err()
}

func (h *History) HealthInfo() model.HealthInfo {
	h.mu.RLock()
	records := 0
	for _, log := range h.logs {
		records += len(log)
	}
	h.mu.RUnlock()
	return h.doc.info(records)
}
