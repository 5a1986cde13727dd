package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/cardhold-backend/api/responses"
	"github.com/angelmondragon/cardhold-backend/api/validators"
	"github.com/angelmondragon/cardhold-backend/internal/deposits"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cardhold-backend/pkg/errors"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
	"github.com/angelmondragon/cardhold-backend/pkg/pagination"
)

type createDepositRequest struct {
	CustomerID      string            `json:"customer_id" validate:"required"`
	PaymentMethodID string            `json:"payment_method_id" validate:"required"`
	Currency        string            `json:"currency" validate:"required,len=3"`
	AmountCents     int64             `json:"amount_cents" validate:"required,gt=0"`
	IdempotencyKey  string            `json:"idempotency_key"`
	Metadata        map[string]string `json:"metadata"`
}

type amountRequest struct {
	AmountCents *int64 `json:"amount_cents"`
}

// CreateDeposit places a new authorization hold.
func CreateDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDepositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
			req.IdempotencyKey = key
		}

		deposit, err := svc.Create(r.Context(), deposits.CreateDepositInput{
			CustomerID:      req.CustomerID,
			PaymentMethodID: req.PaymentMethodID,
			Currency:        req.Currency,
			AmountCents:     req.AmountCents,
			IdempotencyKey:  req.IdempotencyKey,
			Metadata:        req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, deposit)
	}
}

// GetDeposit returns a deposit by id.
func GetDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := depositIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deposit, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

// ListDeposits returns a filtered, cursor-paginated page of deposits.
func ListDeposits(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, params, err := parseListDeposits(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ReauthorizeDeposit renews the hold on an authorized deposit.
func ReauthorizeDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return depositAction(logg, func(r *http.Request, id uuid.UUID) (any, error) {
		return svc.Reauthorize(r.Context(), id)
	})
}

// CaptureDeposit captures all or part of the held amount.
func CaptureDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return depositAmountAction(logg, func(r *http.Request, id uuid.UUID, amount *int64) (any, error) {
		return svc.Capture(r.Context(), id, amount)
	})
}

// ReleaseDeposit releases the remaining held amount back to the customer.
func ReleaseDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return depositAction(logg, func(r *http.Request, id uuid.UUID) (any, error) {
		return svc.Release(r.Context(), id)
	})
}

// RefundDeposit refunds all or part of the captured amount.
func RefundDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return depositAmountAction(logg, func(r *http.Request, id uuid.UUID, amount *int64) (any, error) {
		return svc.Refund(r.Context(), id, amount)
	})
}

func depositAction(logg *logger.Logger, fn func(*http.Request, uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := depositIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deposit, err := fn(r, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

func depositAmountAction(logg *logger.Logger, fn func(*http.Request, uuid.UUID, *int64) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := depositIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req amountRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		deposit, err := fn(r, id, req.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

func depositIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "depositId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deposit id")
	}
	return id, nil
}

func parseListDeposits(r *http.Request) (deposits.ListFilters, pagination.Params, error) {
	var filters deposits.ListFilters
	var params pagination.Params

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseDepositStatus(raw)
		if err != nil {
			return filters, params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	filters.CustomerID = strings.TrimSpace(r.URL.Query().Get("customer_id"))

	minAmount, err := validators.ParseQueryInt64(r, "min_amount")
	if err != nil {
		return filters, params, err
	}
	filters.MinAmount = minAmount

	maxAmount, err := validators.ParseQueryInt64(r, "max_amount")
	if err != nil {
		return filters, params, err
	}
	filters.MaxAmount = maxAmount

	dateFrom, err := validators.ParseQueryTime(r, "date_from")
	if err != nil {
		return filters, params, err
	}
	filters.DateFrom = dateFrom

	dateTo, err := validators.ParseQueryTime(r, "date_to")
	if err != nil {
		return filters, params, err
	}
	filters.DateTo = dateTo

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filters, params, err
	}
	params.Limit = limit
	params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

	return filters, params, nil
}
