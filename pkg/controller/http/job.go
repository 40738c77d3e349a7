package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
	"github.com/WaffleHacks/autodeploy/pkg/utils/errutil"
)

// JobHandler exposes deployment job records
type JobHandler struct {
	webhookUC interfaces.WebhookUseCase
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(webhookUC interfaces.WebhookUseCase) *JobHandler {
	return &JobHandler{webhookUC: webhookUC}
}

// Get writes the record of the job named in the path
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := types.JobID(chi.URLParam(r, "id"))

	record, err := h.webhookUC.GetJob(ctx, id)
	if err != nil {
		errutil.Handle(ctx, err, "Failed to get job")
		writeError(ctx, w, err, http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeError(ctx, w, goerr.New("job not found", goerr.V("job_id", id)), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(record); err != nil {
		ctxlog.From(ctx).Error("Failed to encode job response", "error", err)
	}
}
