// README: HTTP surface of the sending-request lifecycle.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fret/internal/http/middleware"
	"fret/internal/modules/request"
	"fret/internal/types"
)

type RequestHandler struct {
	svc *request.Service
}

func NewRequestHandler(svc *request.Service) *RequestHandler {
	return &RequestHandler{svc: svc}
}

// requestPayload is the full editable field set as it appears on the
// wire. Money and weight unmarshal through shopspring/decimal, so JSON
// numbers keep their exact decimal text. Field-level validation lives
// in the service, which reports every problem at once.
type requestPayload struct {
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	RecipientPhone string `json:"recipient_phone"`

	CargoType  string          `json:"cargo_type"`
	Weight     decimal.Decimal `json:"weight"`
	Dimensions string          `json:"dimensions"`
	Quantity   int             `json:"quantity"`

	PickupLocation   string    `json:"pickup_location"`
	PickupAt         time.Time `json:"pickup_date_time"`
	DeliveryLocation string    `json:"delivery_location"`
	DeliveryAt       time.Time `json:"delivery_date_time"`

	AdditionalDetails *string `json:"additional_details"`
	SpecialConditions *string `json:"special_conditions"`
	Priority          string  `json:"priority"`

	BasePrice      *decimal.Decimal `json:"base_price"`
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

func (p requestPayload) toPayload() request.Payload {
	return request.Payload{
		RecipientName:     p.RecipientName,
		RecipientEmail:    p.RecipientEmail,
		RecipientPhone:    p.RecipientPhone,
		CargoType:         request.CargoType(p.CargoType),
		Weight:            p.Weight,
		Dimensions:        p.Dimensions,
		Quantity:          p.Quantity,
		PickupLocation:    p.PickupLocation,
		PickupAt:          p.PickupAt,
		DeliveryLocation:  p.DeliveryLocation,
		DeliveryAt:        p.DeliveryAt,
		AdditionalDetails: p.AdditionalDetails,
		SpecialConditions: p.SpecialConditions,
		Priority:          request.Priority(p.Priority),
		BasePrice:         p.BasePrice,
		CommissionRate:    p.CommissionRate,
	}
}

type requestPatch struct {
	RecipientName  *string `json:"recipient_name"`
	RecipientEmail *string `json:"recipient_email"`
	RecipientPhone *string `json:"recipient_phone"`

	CargoType  *string          `json:"cargo_type"`
	Weight     *decimal.Decimal `json:"weight"`
	Dimensions *string          `json:"dimensions"`
	Quantity   *int             `json:"quantity"`

	PickupLocation   *string    `json:"pickup_location"`
	PickupAt         *time.Time `json:"pickup_date_time"`
	DeliveryLocation *string    `json:"delivery_location"`
	DeliveryAt       *time.Time `json:"delivery_date_time"`

	AdditionalDetails *string `json:"additional_details"`
	SpecialConditions *string `json:"special_conditions"`
	Priority          *string `json:"priority"`

	BasePrice      *decimal.Decimal `json:"base_price"`
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

func (p requestPatch) toPatch() request.Patch {
	out := request.Patch{
		RecipientName:     p.RecipientName,
		RecipientEmail:    p.RecipientEmail,
		RecipientPhone:    p.RecipientPhone,
		Weight:            p.Weight,
		Dimensions:        p.Dimensions,
		Quantity:          p.Quantity,
		PickupLocation:    p.PickupLocation,
		PickupAt:          p.PickupAt,
		DeliveryLocation:  p.DeliveryLocation,
		DeliveryAt:        p.DeliveryAt,
		AdditionalDetails: p.AdditionalDetails,
		SpecialConditions: p.SpecialConditions,
		BasePrice:         p.BasePrice,
		CommissionRate:    p.CommissionRate,
	}
	if p.CargoType != nil {
		ct := request.CargoType(*p.CargoType)
		out.CargoType = &ct
	}
	if p.Priority != nil {
		pr := request.Priority(*p.Priority)
		out.Priority = &pr
	}
	return out
}

func requestView(r *request.Request) gin.H {
	return gin.H{
		"id":                 r.ID,
		"client_id":          r.ClientID,
		"recipient_name":     r.RecipientName,
		"recipient_email":    r.RecipientEmail,
		"recipient_phone":    r.RecipientPhone,
		"cargo_type":         r.CargoType,
		"weight":             r.Weight.String(),
		"dimensions":         r.Dimensions,
		"quantity":           r.Quantity,
		"pickup_location":    r.PickupLocation,
		"pickup_date_time":   r.PickupAt,
		"delivery_location":  r.DeliveryLocation,
		"delivery_date_time": r.DeliveryAt,
		"additional_details": r.AdditionalDetails,
		"special_conditions": r.SpecialConditions,
		"priority":           r.Priority,
		"base_price":         decString(r.BasePrice),
		"commission_rate":    decString(r.CommissionRate),
		"total_price":        decString(r.TotalPrice),
		"cancellation_fee":   decString(r.CancellationFee),
		"refund_amount":      decString(r.RefundAmount),
		"status":             r.Status,
		"status_version":     r.StatusVersion,
		"request_date":       r.RequestDate,
		"updated_at":         r.UpdatedAt,
	}
}

func requestListView(rs []request.Request) []gin.H {
	out := make([]gin.H, 0, len(rs))
	for i := range rs {
		out = append(out, requestView(&rs[i]))
	}
	return out
}

func (h *RequestHandler) Create(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body requestPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	r, err := h.svc.Submit(c.Request.Context(), request.SubmitCommand{Actor: actor, Payload: body.toPayload()})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requestView(r))
}

func (h *RequestHandler) ListOwn(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	rs, err := h.svc.ListOwn(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestListView(rs))
}

func (h *RequestHandler) ListOpen(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	rs, err := h.svc.ListOpen(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestListView(rs))
}

// ListAll is the admin listing. ?status= takes a comma-separated set;
// empty means every status.
func (h *RequestHandler) ListAll(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var statuses []request.Status
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, request.Status(strings.TrimSpace(part)))
		}
	}
	rs, err := h.svc.ListByStatus(c.Request.Context(), actor, statuses)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestListView(rs))
}

func (h *RequestHandler) Get(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	r, err := h.svc.Get(c.Request.Context(), actor, types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestView(r))
}

func (h *RequestHandler) Update(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body requestPatch
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	r, err := h.svc.Update(c.Request.Context(), request.UpdateCommand{
		Actor:     actor,
		RequestID: types.ID(c.Param("id")),
		Patch:     body.toPatch(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestView(r))
}

// Decide handles the admin accept/reject decision on a pending request.
func (h *RequestHandler) Decide(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	id := types.ID(c.Param("id"))
	var (
		r   *request.Request
		err error
	)
	switch request.Status(body.Status) {
	case request.StatusAccepted:
		r, err = h.svc.Accept(c.Request.Context(), actor, id)
	case request.StatusRejected:
		r, err = h.svc.Reject(c.Request.Context(), actor, id)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be accepted or rejected"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestView(r))
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	r, err := h.svc.Cancel(c.Request.Context(), actor, types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestView(r))
}

// optionalPayload binds the body when one is present. Presence is
// decided by the decode itself, not Content-Length, since chunked
// requests report length -1; an empty body decodes to io.EOF and means
// "no payload".
func optionalPayload(c *gin.Context) (*requestPayload, bool) {
	var body requestPayload
	switch err := c.ShouldBindJSON(&body); {
	case err == nil:
		return &body, true
	case errors.Is(err, io.EOF):
		return nil, true
	default:
		return nil, false
	}
}

// Relaunch re-enters pending from cancelled. The body is optional; when
// present it replaces the editable fields before resubmission.
func (h *RequestHandler) Relaunch(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	cmd := request.RelaunchCommand{Actor: actor, RequestID: types.ID(c.Param("id"))}
	body, ok := optionalPayload(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body != nil {
		p := body.toPayload()
		cmd.Payload = &p
	}
	r, err := h.svc.Relaunch(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestView(r))
}

func (h *RequestHandler) Delete(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	if err := h.svc.Delete(c.Request.Context(), actor, types.ID(c.Param("id"))); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RequestHandler) Events(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	events, err := h.svc.Events(c.Request.Context(), actor, types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		out = append(out, gin.H{
			"request_id":  e.RequestID,
			"from_status": e.FromStatus,
			"to_status":   e.ToStatus,
			"actor_role":  e.ActorRole,
			"actor_id":    e.ActorID,
			"created_at":  e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
