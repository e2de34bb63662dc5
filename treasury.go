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
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/model"
)

// TreasuryAccountID is the ledger account holding government revenue.
const TreasuryAccountID = "server_treasury"

var treasuryTracer = otel.Tracer("economy.treasury")

// TaxCollection is the result of taxing one account.
type TaxCollection struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Tax       float64 `json:"tax"`
}

// Treasury receives penalties and tax revenue. Its balance lives in the ledger.
type Treasury struct {
	ledger   *Ledger
	tax      config.TaxConfig
	notifier Notifier
	hooks    *WebhookQueue
}

func NewTreasury(ledger *Ledger, tax config.TaxConfig, notifier Notifier) *Treasury {
	return &Treasury{ledger: ledger, tax: tax, notifier: notifier}
}

func (t *Treasury) SetWebhooks(hooks *WebhookQueue) {
	t.hooks = hooks
}

func (t *Treasury) Balance() float64 {
	return t.ledger.GetBalance(TreasuryAccountID)
}

func (t *Treasury) Deposit(ctx context.Context, amount float64, opts ...EntryOption) error {
	return t.ledger.Deposit(ctx, TreasuryAccountID, amount, opts...)
}

func (t *Treasury) Withdraw(ctx context.Context, amount float64, opts ...EntryOption) bool {
	return t.ledger.Withdraw(ctx, TreasuryAccountID, amount, opts...)
}

func (t *Treasury) SetBalance(ctx context.Context, amount float64) error {
	return t.ledger.SetBalance(ctx, TreasuryAccountID, amount, WithDescription("Treasury adjustment"))
}

// TaxOwed computes the tax on the account's current balance without charging it.
func (t *Treasury) TaxOwed(id string) float64 {
	if id == TreasuryAccountID {
		return 0
	}
	return ComputeTax(t.ledger.GetBalance(id), t.tax)
}

// CollectTax charges the account its owed tax and credits the treasury.
func (t *Treasury) CollectTax(ctx context.Context, id string) (TaxCollection, error) {
	ctx, span := treasuryTracer.Start(ctx, "CollectTax", trace.WithAttributes(attribute.String("account.id", id)))
	defer span.End()

	balance := t.ledger.GetBalance(id)
	collection := TaxCollection{AccountID: id, Balance: balance, Tax: t.TaxOwed(id)}
	if collection.Tax <= 0 {
		return collection, nil
	}

	if err := t.ledger.Charge(ctx, id, collection.Tax, WithType(model.TransactionTax), WithDescription("Wealth tax")); err != nil {
		span.RecordError(err)
		return TaxCollection{}, err
	}
	if err := t.Deposit(ctx, collection.Tax, WithType(model.TransactionTax), WithDescription("Tax from "+id)); err != nil {
		span.RecordError(err)
		return TaxCollection{}, err
	}

	if t.notifier != nil {
		t.notifier.Notify(id, fmt.Sprintf("Wealth tax of %s collected.", money(collection.Tax)))
	}
	t.hooks.Publish(NewWebhook{Event: EventTaxCollected, Payload: collection})
	return collection, nil
}

// CollectAllTax taxes every account other than the treasury.
func (t *Treasury) CollectAllTax(ctx context.Context) ([]TaxCollection, float64) {
	var collected []TaxCollection
	total := 0.0
	for _, account := range t.ledger.Accounts() {
		if account.ID == TreasuryAccountID {
			continue
		}
		c, err := t.CollectTax(ctx, account.ID)
		if err != nil {
			logrus.Errorf("failed to collect tax from %s: %v", account.ID, err)
			continue
		}
		if c.Tax > 0 {
			collected = append(collected, c)
			total = add(total, c.Tax)
		}
	}
	logrus.Infof("collected %s tax from %d accounts", money(total), len(collected))
	return collected, total
}
