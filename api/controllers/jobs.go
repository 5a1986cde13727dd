package controllers

import (
	"net/http"

	"github.com/angelmondragon/cardhold-backend/api/responses"
	"github.com/angelmondragon/cardhold-backend/internal/jobhealth"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

// ListJobHealth returns the last-run snapshot of every background job.
func ListJobHealth(repo jobhealth.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshots, err := repo.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"jobs": snapshots})
	}
}
