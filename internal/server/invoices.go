package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetInvoice(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if inv == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           inv.ID.String(),
		"booking_id":   inv.BookingID.String(),
		"business_id":  inv.BusinessID.String(),
		"number":       inv.Number,
		"amount":       inv.Amount.StringFixed(2),
		"platform_fee": inv.PlatformFee.StringFixed(2),
		"net_amount":   inv.NetAmount.StringFixed(2),
		"currency":     inv.Currency,
		"document_url": inv.DocumentURL,
		"issued_at":    inv.IssuedAt,
	})
}
