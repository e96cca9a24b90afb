// README: HTTP surface of the fleet-assignment ledger.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fret/internal/http/middleware"
	"fret/internal/modules/assignment"
	"fret/internal/types"
)

type AssignmentHandler struct {
	svc *assignment.Service
}

func NewAssignmentHandler(svc *assignment.Service) *AssignmentHandler {
	return &AssignmentHandler{svc: svc}
}

func assignmentView(a *assignment.Assignment) gin.H {
	return gin.H{
		"id":                 a.ID,
		"sending_request_id": a.SendingRequestID,
		"fleet_manager_id":   a.FleetManagerID,
		"driver_id":          a.DriverID,
		"truck_id":           a.TruckID,
		"delivery_note_id":   a.DeliveryNoteID,
		"assigned_at":        a.AssignedAt,
		"status":             a.Status,
		"status_version":     a.StatusVersion,
	}
}

// Create claims an accepted request for the calling chief. Losing a
// concurrent claim surfaces as 409.
func (h *AssignmentHandler) Create(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body struct {
		RequestID string  `json:"request_id" binding:"required"`
		DriverID  *string `json:"driver_id"`
		TruckID   *string `json:"truck_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request_id is required"})
		return
	}

	cmd := assignment.ClaimCommand{Actor: actor, RequestID: types.ID(body.RequestID)}
	if body.DriverID != nil {
		id := types.ID(*body.DriverID)
		cmd.DriverID = &id
	}
	if body.TruckID != nil {
		id := types.ID(*body.TruckID)
		cmd.TruckID = &id
	}

	a, err := h.svc.Claim(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignmentView(a))
}

func (h *AssignmentHandler) ListOwn(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	as, err := h.svc.ListOwn(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(as))
	for i := range as {
		out = append(out, assignmentView(&as[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *AssignmentHandler) Get(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	a, err := h.svc.Get(c.Request.Context(), actor, types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignmentView(a))
}

func (h *AssignmentHandler) UpdateDriver(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body struct {
		DriverID string `json:"driver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "driver_id is required"})
		return
	}
	a, err := h.svc.ReassignDriver(c.Request.Context(), actor, types.ID(c.Param("id")), types.ID(body.DriverID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignmentView(a))
}

func (h *AssignmentHandler) UpdateTruck(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body struct {
		TruckID string `json:"truck_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "truck_id is required"})
		return
	}
	a, err := h.svc.ReassignTruck(c.Request.Context(), actor, types.ID(c.Param("id")), types.ID(body.TruckID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignmentView(a))
}

func (h *AssignmentHandler) Cancel(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	a, err := h.svc.Cancel(c.Request.Context(), actor, types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignmentView(a))
}

func (h *AssignmentHandler) Complete(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	a, err := h.svc.Complete(c.Request.Context(), actor, types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignmentView(a))
}
