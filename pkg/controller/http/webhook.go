package http

import (
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	githubcontroller "github.com/WaffleHacks/autodeploy/pkg/controller/github"
	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

const (
	// MaxBodySize is the largest webhook body accepted
	MaxBodySize = 64 * 1024

	// HeaderJobID carries the ID of the job enqueued for a delivery
	HeaderJobID = "X-Autodeploy-Job-Id"

	headerSignature = "X-Hub-Signature-256"
	headerDelivery  = "X-GitHub-Delivery"
)

// WebhookHandler handles GitHub webhooks
type WebhookHandler struct {
	secret    string
	webhookUC interfaces.WebhookUseCase
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(secret string, webhookUC interfaces.WebhookUseCase) *WebhookHandler {
	return &WebhookHandler{
		secret:    secret,
		webhookUC: webhookUC,
	}
}

// Handle processes webhook requests
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get(headerDelivery)
	ctx := ctxlog.With(r.Context(), ctxlog.From(r.Context()).With("delivery_id", deliveryID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		handleError(ctx, w, goerr.Wrap(model.ErrBodyParsing, "failed to read request body", goerr.V("cause", err.Error())))
		return
	}
	defer r.Body.Close()

	// the signature covers the raw bytes, so it is checked before anything is parsed
	if err := VerifySignature(body, r.Header.Get(headerSignature), h.secret); err != nil {
		handleError(ctx, w, err)
		return
	}

	payload, err := githubcontroller.ParseEvent(body)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	event := &model.WebhookEvent{
		DeliveryID: deliveryID,
		ReceivedAt: time.Now(),
		Payload:    payload,
	}

	job, err := h.webhookUC.HandleEvent(ctx, event)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	if job != nil {
		w.Header().Set(HeaderJobID, job.ID.String())
	}
	w.WriteHeader(http.StatusNoContent)
}
