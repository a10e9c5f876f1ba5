package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/salonkit/salonkit/internal/payment/domain"
)

// maxWebhookBody bounds the raw payload read; Stripe events are far
// smaller than this.
const maxWebhookBody = 1 << 20

// HandleStripeWebhook verifies the delivery against the raw body and
// hands the event to the reconciliation service. Responses follow the
// provider's retry semantics: 200 acknowledges (including duplicates and
// harmless no-ops), 400 rejects a bad signature permanently, 500 asks
// for a retry.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := s.verifier.VerifyAndParse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.paymentSvc.ProcessEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
