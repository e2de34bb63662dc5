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
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

const (
	MinCreditScore     = 300
	MaxCreditScore     = 850
	InitialCreditScore = 600

	onTimePaymentPoints = 5
	missedPaymentPoints = -25
	loanCompletedPoints = 40
	loanDefaultedPoints = -150

	DefaultCreditDocument = "credit_scores.json"
)

// CreditScorer is consulted by the loan processor for eligibility and pricing
// and informed of every repayment outcome.
type CreditScorer interface {
	CanTakeLoan(owner string, tier model.LoanTier) bool
	EffectiveInterestRate(owner string, tier model.LoanTier) float64
	RecordOnTimePayment(owner string)
	RecordMissedPayment(owner string)
	RecordLoanCompleted(owner string, totalRepaid float64)
	RecordLoanDefaulted(owner string)
}

// CreditScore is the payment-history scorer persisted alongside the loans.
type CreditScore struct {
	mu      sync.RWMutex
	records map[string]*model.CreditRecord
	tiers   map[model.LoanTier]model.LoanTerms
	doc     *document
}

func NewCreditScore(store database.Store, documentName string, tiers map[model.LoanTier]model.LoanTerms) *CreditScore {
	if documentName == "" {
		documentName = DefaultCreditDocument
	}
	if len(tiers) == 0 {
		tiers = config.DefaultLoanTiers()
	}
	return &CreditScore{
		records: make(map[string]*model.CreditRecord),
		tiers:   tiers,
		doc:     newDocument(store, "credit", documentName),
	}
}

// Rating buckets a score.
func Rating(score int) model.CreditRating {
	switch {
	case score >= 750:
		return model.RatingExcellent
	case score >= 650:
		return model.RatingGood
	case score >= 550:
		return model.RatingFair
	case score >= 450:
		return model.RatingPoor
	default:
		return model.RatingBad
	}
}

// RateModifier scales a tier's base interest rate for a rating.
func RateModifier(rating model.CreditRating) float64 {
	switch rating {
	case model.RatingExcellent:
		return 0.8
	case model.RatingGood:
		return 1.0
	case model.RatingFair:
		return 1.2
	case model.RatingPoor:
		return 1.35
	default:
		return 1.5
	}
}

func clampScore(score int) int {
	if score < MinCreditScore {
		return MinCreditScore
	}
	if score > MaxCreditScore {
		return MaxCreditScore
	}
	return score
}

// recordLocked returns the owner's record, creating it at the initial score.
func (c *CreditScore) recordLocked(owner string) *model.CreditRecord {
	rec, ok := c.records[owner]
	if !ok {
		rec = &model.CreditRecord{Owner: owner, Score: InitialCreditScore, UpdatedAt: time.Now()}
		c.records[owner] = rec
	}
	return rec
}

func (c *CreditScore) Score(owner string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rec, ok := c.records[owner]; ok {
		return rec.Score
	}
	return InitialCreditScore
}

func (c *CreditScore) Rating(owner string) model.CreditRating {
	return Rating(c.Score(owner))
}

// Record returns a copy of the owner's history. Unknown owners get a fresh record.
func (c *CreditScore) Record(owner string) model.CreditRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rec, ok := c.records[owner]; ok {
		return *rec
	}
	return model.CreditRecord{Owner: owner, Score: InitialCreditScore}
}

func (c *CreditScore) Records() []model.CreditRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.CreditRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

func (c *CreditScore) CanTakeLoan(owner string, tier model.LoanTier) bool {
	terms, ok := c.tiers[tier]
	if !ok {
		return false
	}
	return c.Score(owner) >= terms.MinScore
}

// EffectiveInterestRate scales the tier's base rate by the owner's rating.
// Owners with no credit history yet borrow at the base rate.
func (c *CreditScore) EffectiveInterestRate(owner string, tier model.LoanTier) float64 {
	terms, ok := c.tiers[tier]
	if !ok {
		return 0
	}
	c.mu.RLock()
	rec, known := c.records[owner]
	modifier := 1.0
	if known {
		modifier = RateModifier(Rating(rec.Score))
	}
	c.mu.RUnlock()
	return decimal.NewFromFloat(terms.BaseRate).Mul(decimal.NewFromFloat(modifier)).Round(4).InexactFloat64()
}

func (c *CreditScore) adjust(owner string, points int, update func(*model.CreditRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.recordLocked(owner)
	before := rec.Score
	rec.Score = clampScore(rec.Score + points)
	if update != nil {
		update(rec)
	}
	rec.UpdatedAt = time.Now()
	c.doc.markDirty()
	logrus.Debugf("credit score for %s: %d -> %d", owner, before, rec.Score)
}

func (c *CreditScore) RecordOnTimePayment(owner string) {
	c.adjust(owner, onTimePaymentPoints, func(r *model.CreditRecord) { r.OnTimePayments++ })
}

func (c *CreditScore) RecordMissedPayment(owner string) {
	c.adjust(owner, missedPaymentPoints, func(r *model.CreditRecord) { r.MissedPayments++ })
}

func (c *CreditScore) RecordLoanCompleted(owner string, totalRepaid float64) {
	c.adjust(owner, loanCompletedPoints, func(r *model.CreditRecord) {
		r.LoansCompleted++
		r.TotalRepaid = add(r.TotalRepaid, totalRepaid)
	})
}

func (c *CreditScore) RecordLoanDefaulted(owner string) {
	c.adjust(owner, loanDefaultedPoints, func(r *model.CreditRecord) { r.LoansDefaulted++ })
}

func (c *CreditScore) Save(ctx context.Context) error {
	err := c.doc.save(ctx, func() interface{} {
		c.mu.RLock()
		defer c.mu.RUnlock()
		snapshot := make(map[string]model.CreditRecord, len(c.records))
		for owner, rec := range c.records {
			snapshot[owner] = *rec
		}
		return snapshot
	})
	if err != nil {
		logrus.Errorf("failed to save credit scores: %v", err)
	}
	return err
}

func (c *CreditScore) SaveIfNeeded(ctx context.Context) error {
	if !c.doc.isDirty() {
		return nil
	}
	return c.Save(ctx)
}

func (c *CreditScore) Load(ctx context.Context) error {
	stored := make(map[string]model.CreditRecord)
	if err := c.doc.load(ctx, &stored); err != nil {
		logrus.Errorf("failed to load credit scores: %v", err)
		return err
	}
	records := make(map[string]*model.CreditRecord, len(stored))
	for owner, rec := range stored {
		rec := rec
		rec.Owner = owner
		rec.Score = clampScore(rec.Score)
		records[owner] = &rec
	}
	c.mu.Lock()
	c.records = records
	c.mu.Unlock()
	return nil
}

func (c *CreditScore) HealthInfo() model.HealthInfo {
	c.mu.RLock()
	records := len(c.records)
	c.mu.RUnlock()
	return c.doc.info(records)
}
