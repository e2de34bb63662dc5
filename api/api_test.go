package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy"
	model2 "github.com/blnkfinance/economy/api/model"
	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil && resp.Body.Len() > 0 {
		if err := json.NewDecoder(resp.Body).Decode(s.Response); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func payload(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func setupRouter(t *testing.T, configure ...func(*config.Configuration)) (*gin.Engine, *economy.Economy) {
	t.Helper()
	cnf := config.Defaults()
	cnf.Ledger.StartingBalance = 1000
	cnf.Backup.Dir = t.TempDir()
	for _, fn := range configure {
		fn(cnf)
	}

	store, err := database.NewFileStore(t.TempDir())
	require.NoError(t, err)
	e := economy.NewEconomy(cnf, store, nil, nil)
	return NewAPI(e).Router(), e
}

func TestCreateAccount(t *testing.T) {
	router, _ := setupRouter(t)
	existing := gofakeit.Username()

	tests := []struct {
		name         string
		payload      model2.CreateAccount
		expectedCode int
	}{
		{name: "Valid Account", payload: model2.CreateAccount{ID: existing}, expectedCode: http.StatusCreated},
		{name: "Duplicate Account", payload: model2.CreateAccount{ID: existing}, expectedCode: http.StatusConflict},
		{name: "Empty ID", payload: model2.CreateAccount{}, expectedCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var response map[string]interface{}
			resp, err := SetUpTestRequest(TestRequest{
				Payload:  payload(t, tt.payload),
				Router:   router,
				Response: &response,
				Method:   http.MethodPost,
				Route:    "/accounts",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, resp.Code)
			if tt.expectedCode == http.StatusCreated {
				assert.Equal(t, 1000.0, response["balance"])
			}
		})
	}
}

func TestGetAndDeleteAccount(t *testing.T) {
	router, e := setupRouter(t)
	require.NoError(t, e.Ledger.CreateAccount(context.Background(), "alice"))

	var account model.Account
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &account, Method: http.MethodGet, Route: "/accounts/alice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1000.0, account.Balance)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodDelete, Route: "/accounts/alice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	var apiErr map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &apiErr, Method: http.MethodGet, Route: "/accounts/alice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", apiErr["code"])
}

func TestSetBalanceAndTransfer(t *testing.T) {
	router, e := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Payload: strings.NewReader(`{"balance": 250}`),
		Router:  router,
		Method:  http.MethodPut,
		Route:   "/accounts/alice/balance",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Payload: strings.NewReader(`{}`),
		Router:  router,
		Method:  http.MethodPut,
		Route:   "/accounts/alice/balance",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	tests := []struct {
		name         string
		payload      model2.Transfer
		expectedCode int
	}{
		{name: "Valid Transfer", payload: model2.Transfer{From: "alice", To: "bob", Amount: 100, Description: "sword"}, expectedCode: http.StatusOK},
		{name: "Insufficient Funds", payload: model2.Transfer{From: "alice", To: "bob", Amount: 1000}, expectedCode: http.StatusUnprocessableEntity},
		{name: "Self Transfer", payload: model2.Transfer{From: "alice", To: "alice", Amount: 1}, expectedCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := SetUpTestRequest(TestRequest{Payload: payload(t, tt.payload), Router: router, Method: http.MethodPost, Route: "/transfers"})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}

	assert.Equal(t, 150.0, e.Ledger.GetBalance("alice"))
	assert.Equal(t, 100.0, e.Ledger.GetBalance("bob"))

	var records []model.TransactionRecord
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &records, Method: http.MethodGet, Route: "/accounts/alice/transactions?type=TRANSFER"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, records, 1)
	assert.Equal(t, -100.0, records[0].Amount)

	var summary AccountSummary
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &summary, Method: http.MethodGet, Route: "/accounts/bob/summary"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 100.0, summary.TotalIncome)
	require.NotNil(t, summary.Credit)
	assert.Equal(t, 600, summary.Credit.Score)
}

func TestLoanRoutes(t *testing.T) {
	router, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Payload: payload(t, model2.ApplyLoan{Owner: "alice", Tier: model.LoanSmall}),
		Router:  router, Method: http.MethodPost, Route: "/loans",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "no account means no balance")

	resp, err = SetUpTestRequest(TestRequest{Payload: strings.NewReader(`{"balance": 1000}`), Router: router, Method: http.MethodPut, Route: "/accounts/alice/balance"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Code)

	var loan model.Loan
	resp, err = SetUpTestRequest(TestRequest{
		Payload:  payload(t, model2.ApplyLoan{Owner: "alice", Tier: model.LoanSmall}),
		Router:   router,
		Response: &loan,
		Method:   http.MethodPost,
		Route:    "/loans",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, 5500.0, loan.Remaining)

	resp, err = SetUpTestRequest(TestRequest{
		Payload: payload(t, model2.ApplyLoan{Owner: "alice", Tier: model.LoanSmall}),
		Router:  router, Method: http.MethodPost, Route: "/loans",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Payload: payload(t, model2.ApplyLoan{Owner: "alice", Tier: "HUGE"}),
		Router:  router, Method: http.MethodPost, Route: "/loans",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var report CreditReport
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &report, Method: http.MethodGet, Route: "/credit/alice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.RatingFair, report.Rating)
	require.Len(t, report.Offers, 3)
	assert.Equal(t, 0.1, report.Offers[0].Rate)
	assert.False(t, report.Offers[2].Eligible)

	var repaid map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &repaid, Method: http.MethodPost, Route: "/loans/alice/repay"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 5500.0, repaid["paid"])
	assert.Equal(t, 500.0, repaid["balance"])

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/loans/alice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRecurringRoutes(t *testing.T) {
	router, _ := setupRouter(t)

	var payment model.RecurringPayment
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  payload(t, model2.CreateRecurring{From: "alice", To: "bob", Amount: 25, IntervalDays: 7, Description: "rent"}),
		Router:   router,
		Response: &payment,
		Method:   http.MethodPost,
		Route:    "/recurring",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Code)

	short := economy.ShortID(payment.PaymentID)
	typo := short[:len(short)-1] + "z"

	var apiErr struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &apiErr, Method: http.MethodPost, Route: "/recurring/alice/" + typo + "/pause"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, short, apiErr.Details["did_you_mean"])

	var listed []model.RecurringPayment
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &listed, Method: http.MethodPost, Route: "/recurring/alice/" + short + "/pause"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Active)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodDelete, Route: "/recurring/alice/" + short})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &listed, Method: http.MethodGet, Route: "/recurring/alice"})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSavingsRoutes(t *testing.T) {
	router, e := setupRouter(t)
	require.NoError(t, e.Ledger.SetBalance(context.Background(), "alice", 20000))

	resp, err := SetUpTestRequest(TestRequest{
		Payload: payload(t, model2.OpenSavings{Owner: "alice", Amount: 500}),
		Router:  router, Method: http.MethodPost, Route: "/savings",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "below the minimum deposit")

	var account model.SavingsAccount
	resp, err = SetUpTestRequest(TestRequest{
		Payload:  payload(t, model2.OpenSavings{Owner: "alice", Amount: 10000}),
		Router:   router,
		Response: &account,
		Method:   http.MethodPost,
		Route:    "/savings",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Payload: payload(t, model2.WithdrawSavings{Amount: 1000}),
		Router:  router, Method: http.MethodPost, Route: "/savings/alice/" + account.AccountID + "/withdraw",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "locked without force")

	var withdrawal model.SavingsWithdrawal
	resp, err = SetUpTestRequest(TestRequest{
		Payload:  payload(t, model2.WithdrawSavings{Amount: 1000, Forced: true}),
		Router:   router,
		Response: &withdrawal,
		Method:   http.MethodPost,
		Route:    "/savings/alice/" + account.AccountID + "/withdraw",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 100.0, withdrawal.Penalty)
	assert.Equal(t, 100.0, e.Treasury.Balance())

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/savings/alice/savings_missing/close"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestTreasuryAndTax(t *testing.T) {
	router, e := setupRouter(t)
	require.NoError(t, e.Ledger.SetBalance(context.Background(), "alice", 20000))
	require.NoError(t, e.Ledger.SetBalance(context.Background(), "bob", 500))

	var tax map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &tax, Method: http.MethodGet, Route: "/accounts/alice/tax"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 100.0, tax["tax_owed"])

	var collected map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &collected, Method: http.MethodPost, Route: "/treasury/collect"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 100.0, collected["total"])

	var treasury map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &treasury, Method: http.MethodGet, Route: "/treasury"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 100.0, treasury["balance"])
	assert.Equal(t, 19900.0, e.Ledger.GetBalance("alice"))

	var board map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &board, Method: http.MethodGet, Route: "/leaderboard?limit=1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, board["accounts"], 1)
	assert.Equal(t, 20500.0, board["total_supply"])
}

func TestOverdraftStatus(t *testing.T) {
	router, e := setupRouter(t)
	require.NoError(t, e.Ledger.Charge(context.Background(), "carol", 2500))
	e.Tick(context.Background(), 0)

	var status economy.OverdraftStatus
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &status, Method: http.MethodGet, Route: "/overdraft/carol"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, status.InDebt)
	assert.Equal(t, int64(3), status.PenaltyDays)

	var debts []economy.OverdraftStatus
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &debts, Method: http.MethodGet, Route: "/overdraft"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, debts, 1)
}

func TestPriceRoutes(t *testing.T) {
	router, _ := setupRouter(t, func(c *config.Configuration) { c.Pricing.Amplitude = 0.000001 })

	resp, err := SetUpTestRequest(TestRequest{
		Payload: payload(t, model2.CreatePriceEvent{Name: "festival", Kind: "wine", Multiplier: 1.5, StartDay: 0, EndDay: 10}),
		Router:  router, Method: http.MethodPost, Route: "/price-events",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)

	var price map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &price, Method: http.MethodGet, Route: "/prices/wine?day=2&base=10"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1.5, price["multiplier"])
	assert.Equal(t, 15.0, price["price"])

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/prices/wine?day=-4"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHealthAndBackup(t *testing.T) {
	router, e := setupRouter(t)
	require.NoError(t, e.Ledger.CreateAccount(context.Background(), "alice"))

	var health map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &health, Method: http.MethodGet, Route: "/health"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, health["healthy"])

	var backup map[string]string
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &backup, Method: http.MethodGet, Route: "/backup"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.FileExists(t, backup["path"])
}

func TestSecureMode(t *testing.T) {
	router, _ := setupRouter(t, func(c *config.Configuration) {
		c.Server.Secure = true
		c.Server.SecretKey = "s3cret"
	})

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/treasury"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/treasury", Header: map[string]string{"X-Economy-Key": "s3cret"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
}
