package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursebuilder-backend/internal/http/response"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/services"
)

// stripe caps event payloads well below this
const maxWebhookBytes = 1 << 20

type PaymentHandler struct {
	log        *logger.Logger
	membership services.MembershipService
}

func NewPaymentHandler(log *logger.Logger, membership services.MembershipService) *PaymentHandler {
	return &PaymentHandler{log: log.With("handler", "PaymentHandler"), membership: membership}
}

// POST /api/payments/stripe-webhook
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "read_failed", err)
		return
	}
	res, err := h.membership.HandleStripeWebhook(reqDBC(c), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn("Stripe webhook rejected", "error", err)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "ok", "event_type": res.EventType, "action": res.Action})
}
