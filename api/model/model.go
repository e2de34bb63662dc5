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
package model

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/economy/model"
)

type CreateAccount struct {
	ID string `json:"id"`
}

// SetBalance is a pointer so an explicit zero can be told apart from a missing field.
type SetBalance struct {
	Balance *float64 `json:"balance"`
}

type Transfer struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

type ApplyLoan struct {
	Owner string         `json:"owner"`
	Tier  model.LoanTier `json:"tier"`
}

type CreateRecurring struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Amount       float64 `json:"amount"`
	IntervalDays int64   `json:"interval_days"`
	Description  string  `json:"description"`
}

type OpenSavings struct {
	Owner  string  `json:"owner"`
	Amount float64 `json:"amount"`
}

type WithdrawSavings struct {
	Owner  string  `json:"owner"`
	Amount float64 `json:"amount"`
	Forced bool    `json:"forced"`
}

type CreatePriceEvent struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Multiplier float64 `json:"multiplier"`
	StartDay   int64   `json:"start_day"`
	EndDay     int64   `json:"end_day"`
}

func finiteAmount(value interface{}) error {
	v, _ := value.(float64)
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return errors.New("must be a positive number")
	}
	return nil
}

func (a *CreateAccount) ValidateCreateAccount() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ID, validation.Required, validation.Length(1, 64)),
	)
}

func (s *SetBalance) ValidateSetBalance() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Balance, validation.NotNil, validation.By(func(value interface{}) error {
			v, ok := value.(*float64)
			if !ok || v == nil {
				return nil
			}
			if math.IsNaN(*v) || math.IsInf(*v, 0) {
				return errors.New("must be a finite number")
			}
			return nil
		})),
	)
}

func (t *Transfer) ValidateTransfer() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.From, validation.Required),
		validation.Field(&t.To, validation.Required, validation.NotIn(t.From).Error("cannot transfer to the same account")),
		validation.Field(&t.Amount, validation.By(finiteAmount)),
	)
}

func (l *ApplyLoan) ValidateApplyLoan() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Owner, validation.Required),
		validation.Field(&l.Tier, validation.Required, validation.In(model.LoanSmall, model.LoanMedium, model.LoanLarge)),
	)
}

func (r *CreateRecurring) ValidateCreateRecurring() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required, validation.NotIn(r.From).Error("cannot pay yourself")),
		validation.Field(&r.Amount, validation.By(finiteAmount)),
		validation.Field(&r.IntervalDays, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Description, validation.Length(0, 200)),
	)
}

func (s *OpenSavings) ValidateOpenSavings() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Owner, validation.Required),
		validation.Field(&s.Amount, validation.By(finiteAmount)),
	)
}

func (w *WithdrawSavings) ValidateWithdrawSavings() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.Owner, validation.Required),
		validation.Field(&w.Amount, validation.By(finiteAmount)),
	)
}

func (p *CreatePriceEvent) ValidateCreatePriceEvent() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Multiplier, validation.By(finiteAmount)),
		validation.Field(&p.StartDay, validation.Min(int64(0))),
		validation.Field(&p.EndDay, validation.Min(p.StartDay)),
	)
}
