// README: Read-only HTTP surface for delivery notes.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fret/internal/http/middleware"
	"fret/internal/modules/deliverynote"
	"fret/internal/types"
)

type NoteHandler struct {
	store *deliverynote.Store
}

func NewNoteHandler(store *deliverynote.Store) *NoteHandler {
	return &NoteHandler{store: store}
}

func noteView(n *deliverynote.Note) gin.H {
	return gin.H{
		"id":                 n.ID,
		"sending_request_id": n.SendingRequestID,
		"client_id":          n.ClientID,
		"recipient_name":     n.RecipientName,
		"recipient_email":    n.RecipientEmail,
		"recipient_phone":    n.RecipientPhone,
		"cargo_type":         n.CargoType,
		"weight":             n.Weight.String(),
		"dimensions":         n.Dimensions,
		"quantity":           n.Quantity,
		"pickup_location":    n.PickupLocation,
		"pickup_date_time":   n.PickupAt,
		"delivery_location":  n.DeliveryLocation,
		"delivery_date_time": n.DeliveryAt,
		"additional_details": n.AdditionalDetails,
		"special_conditions": n.SpecialConditions,
		"priority":           n.Priority,
		"created_at":         n.CreatedAt,
	}
}

func (h *NoteHandler) Get(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	n, err := h.store.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	if !canReadNote(actor, n) {
		c.JSON(http.StatusForbidden, gin.H{"error": "operation not permitted for this member"})
		return
	}
	c.JSON(http.StatusOK, noteView(n))
}

// ListOwn returns the notes snapshotted from the caller's requests.
func (h *NoteHandler) ListOwn(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	if !actor.Role.CanOwnRequests() {
		c.JSON(http.StatusForbidden, gin.H{"error": "operation not permitted for this member"})
		return
	}
	ns, err := h.store.ListByClient(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(ns))
	for i := range ns {
		out = append(out, noteView(&ns[i]))
	}
	c.JSON(http.StatusOK, out)
}

func canReadNote(actor types.Actor, n *deliverynote.Note) bool {
	switch actor.Role {
	case types.RoleAdmin, types.RoleChief:
		return true
	}
	return actor.Role.CanOwnRequests() && actor.ID == n.ClientID
}
