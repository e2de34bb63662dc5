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

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/economy"
)

// accountCommands inspects stored state without starting the server.
func accountCommands(b *economyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "inspect player accounts",
	}

	cmd.AddCommand(topAccountsCommand(b))
	cmd.AddCommand(showAccountCommand(b))

	return cmd
}

func topAccountsCommand(b *economyInstance) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "list the richest accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := b.economy.Load(cmd.Context()); err != nil {
				return err
			}
			return printTop(cmd.OutOrStdout(), b.economy, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of accounts to list")

	return cmd
}

func showAccountCommand(b *economyInstance) *cobra.Command {
	var id string
	var recent int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "show one account with its recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := b.economy.Load(cmd.Context()); err != nil {
				return err
			}
			return printAccount(cmd.OutOrStdout(), b.economy, id, recent)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "player account id")
	cmd.Flags().IntVar(&recent, "recent", 10, "number of transactions to show")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func printTop(out io.Writer, e *economy.Economy, limit int) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tACCOUNT\tBALANCE")
	for i, account := range e.Ledger.TopBalances(limit) {
		fmt.Fprintf(w, "%d\t%s\t%.2f\n", i+1, account.ID, account.Balance)
	}
	fmt.Fprintf(w, "\ntotal supply\t\t%.2f\n", e.Ledger.TotalSupply())
	return w.Flush()
}

func printAccount(out io.Writer, e *economy.Economy, id string, recent int) error {
	if !e.Ledger.HasAccount(id) {
		return fmt.Errorf("%w: %s", economy.ErrAccountNotFound, id)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "account\t%s\n", id)
	fmt.Fprintf(w, "balance\t%.2f\n", e.Ledger.GetBalance(id))
	fmt.Fprintf(w, "savings\t%.2f\n", e.Savings.TotalSavings(id))
	if loan, ok := e.Loans.GetLoan(id); ok {
		fmt.Fprintf(w, "loan\t%s, %.2f remaining\n", loan.Tier, loan.Remaining)
	}
	if e.Credit != nil {
		fmt.Fprintf(w, "credit score\t%d\n", e.Credit.Score(id))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TIME\tTYPE\tAMOUNT\tBALANCE\tDESCRIPTION")
	for _, tx := range e.History.GetRecentTransactions(id, recent) {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\n", tx.Timestamp.Format("2006-01-02 15:04"), tx.Type, tx.Amount, tx.Balance, tx.Description)
	}
	return w.Flush()
}
