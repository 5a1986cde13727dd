package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/cardhold-backend/api/responses"
	"github.com/angelmondragon/cardhold-backend/api/validators"
	"github.com/angelmondragon/cardhold-backend/internal/notifications"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cardhold-backend/pkg/errors"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

type resendDeadLetterRequest struct {
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	DryRun   bool   `json:"dry_run"`
}

// ListNotifications returns the notification log filtered by deposit, type,
// or sequence range, in append order.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filters notifications.ListFilters

		if raw := strings.TrimSpace(r.URL.Query().Get("deposit_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deposit_id filter"))
				return
			}
			filters.DepositID = &id
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			eventType, err := enums.ParseNotificationType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter"))
				return
			}
			filters.Type = &eventType
		}

		fromSeq, err := validators.ParseQueryInt64(r, "from_seq")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.FromSeq = fromSeq

		toSeq, err := validators.ParseQueryInt64(r, "to_seq")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.ToSeq = toSeq

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.Limit = limit

		entries, err := svc.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"notifications": entries})
	}
}

// ListDeadLetters returns undeliverable notifications, most recent first.
func ListDeadLetters(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		letters, err := svc.ListDeadLetters(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"dead_letters": letters})
	}
}

// ResendDeadLetter redelivers one dead-lettered notification by its original
// sequence number.
func ResendDeadLetter(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sequence number"))
			return
		}

		var req resendDeadLetterRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.ResendDeadLetter(r.Context(), notifications.ResendInput{
			Seq:      seq,
			Endpoint: req.Endpoint,
			DryRun:   req.DryRun,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
