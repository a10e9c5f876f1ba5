package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetBooking(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	booking, err := s.bookingRepo.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if booking == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             booking.ID.String(),
		"business_id":    booking.BusinessID.String(),
		"client_id":      booking.ClientID.String(),
		"start_at":       booking.StartAt,
		"end_at":         booking.EndAt,
		"total_amount":   booking.TotalAmount.StringFixed(2),
		"currency":       booking.Currency,
		"payment_status": booking.PaymentStatus,
		"status":         booking.Status,
	})
}
