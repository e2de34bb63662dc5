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
	"sort"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/economy/config"
)

// ComputeTax returns the tax owed on balance. Each bracket taxes the slice of
// the balance between its own threshold and the next one; nothing below the
// tax-free amount is taxed.
func ComputeTax(balance float64, cfg config.TaxConfig) float64 {
	if !finite(balance) || balance <= cfg.FreeAmount {
		return 0
	}
	brackets := append([]config.TaxBracket(nil), cfg.Brackets...)
	sort.Slice(brackets, func(i, j int) bool { return brackets[i].From < brackets[j].From })

	total := decimal.Zero
	amount := decimal.NewFromFloat(balance)
	free := decimal.NewFromFloat(cfg.FreeAmount)
	for i, bracket := range brackets {
		lower := decimal.Max(decimal.NewFromFloat(bracket.From), free)
		upper := amount
		if i+1 < len(brackets) {
			upper = decimal.Min(amount, decimal.NewFromFloat(brackets[i+1].From))
		}
		if upper.LessThanOrEqual(lower) {
			continue
		}
		total = total.Add(upper.Sub(lower).Mul(decimal.NewFromFloat(bracket.Rate)))
	}
	return total.Round(2).InexactFloat64()
}

// EffectiveTaxRate is the owed tax as a fraction of the balance.
func EffectiveTaxRate(balance float64, cfg config.TaxConfig) float64 {
	if balance <= 0 {
		return 0
	}
	owed := ComputeTax(balance, cfg)
	return decimal.NewFromFloat(owed).Div(decimal.NewFromFloat(balance)).Round(6).InexactFloat64()
}
