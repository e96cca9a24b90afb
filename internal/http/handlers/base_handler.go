// README: Shared handler plumbing: error-to-status mapping and decimal rendering.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fret/internal/inventory"
	"fret/internal/modules/assignment"
	"fret/internal/modules/deliverynote"
	"fret/internal/modules/pricing"
	"fret/internal/modules/request"
)

// respondError translates service sentinels into HTTP statuses. Anything
// unmapped is a 500 with a generic body; the real error goes to the log,
// not the client.
func respondError(c *gin.Context, err error) {
	var verr *request.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		return
	}

	switch {
	case errors.Is(err, request.ErrNotFound),
		errors.Is(err, assignment.ErrNotFound),
		errors.Is(err, deliverynote.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrForbidden),
		errors.Is(err, assignment.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrInvalidState),
		errors.Is(err, request.ErrConflict),
		errors.Is(err, assignment.ErrInvalidState),
		errors.Is(err, assignment.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pricing.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func decString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
