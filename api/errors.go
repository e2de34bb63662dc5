package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/internal/apierror"
)

var errorCodes = []struct {
	err  error
	code apierror.ErrorCode
}{
	{economy.ErrAccountNotFound, apierror.ErrNotFound},
	{economy.ErrLoanNotFound, apierror.ErrNotFound},
	{economy.ErrSavingsNotFound, apierror.ErrNotFound},
	{economy.ErrDuplicateAccount, apierror.ErrConflict},
	{economy.ErrLoanOutstanding, apierror.ErrConflict},
	{economy.ErrRecurringLimit, apierror.ErrConflict},
	{economy.ErrSavingsLimit, apierror.ErrConflict},
	{economy.ErrInvalidAmount, apierror.ErrInvalidInput},
	{economy.ErrSelfTransfer, apierror.ErrInvalidInput},
	{economy.ErrUnknownLoanTier, apierror.ErrInvalidInput},
	{economy.ErrInvalidInterval, apierror.ErrInvalidInput},
	{economy.ErrBelowMinimumDeposit, apierror.ErrInvalidInput},
	{economy.ErrInvalidPriceEvent, apierror.ErrInvalidInput},
	{economy.ErrBalanceTooLow, apierror.ErrRejected},
	{economy.ErrCreditDenied, apierror.ErrRejected},
	{economy.ErrInsufficientBalance, apierror.ErrRejected},
	{economy.ErrSavingsLocked, apierror.ErrRejected},
}

func toAPIError(err error) apierror.APIError {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return apierror.NewAPIError(e.code, err.Error(), nil)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "internal server error", err.Error())
}

func respondError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
}

func invalidInput(c *gin.Context, message string, err error) {
	details := interface{}(nil)
	if err != nil {
		details = err.Error()
	}
	respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, message, details))
}

func notFound(c *gin.Context, message string) {
	respondError(c, apierror.NewAPIError(apierror.ErrNotFound, message, nil))
}
