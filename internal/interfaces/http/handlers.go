package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/application/service"
	"github.com/trungvu/tripflow/internal/domain/entity"
)

// actorHeader identifies the caller on authenticated routes. Upstream
// auth (SSO proxy) is expected to set it; there is no session handling here.
const actorHeader = "X-Actor-Email"

// Handlers contains all HTTP request handlers
type Handlers struct {
	submissionService service.SubmissionService
	decisionService   service.DecisionService
	optimizerService  service.OptimizerService
	auditService      service.AuditService
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	submissionService service.SubmissionService,
	decisionService service.DecisionService,
	optimizerService service.OptimizerService,
	auditService service.AuditService,
	logger Logger,
) *Handlers {
	return &Handlers{
		submissionService: submissionService,
		decisionService:   decisionService,
		optimizerService:  optimizerService,
		auditService:      auditService,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SubmitTripRequest is the payload for creating a trip request.
type SubmitTripRequest struct {
	RequesterID    string   `json:"requester_id" binding:"required"`
	RequesterName  string   `json:"requester_name" binding:"required"`
	RequesterEmail string   `json:"requester_email" binding:"required"`
	ManagerEmail   string   `json:"manager_email"`
	Role           string   `json:"role"`
	Departure      string   `json:"departure" binding:"required"`
	Destination    string   `json:"destination" binding:"required"`
	DepartureTime  string   `json:"departure_time" binding:"required"`
	ReturnTime     string   `json:"return_time" binding:"required"`
	DistanceKm     float64  `json:"distance_km"`
	VehicleType    string   `json:"vehicle_type" binding:"required"`
	PassengerCount int      `json:"passenger_count"`
	CCEmails       []string `json:"cc_emails"`
}

// OverrideRequest is the payload for an admin override decision.
type OverrideRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		},
	})
}

// SubmitTrip handles POST /api/v1/trips
func (h *Handlers) SubmitTrip(c *gin.Context) {
	var req SubmitTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	departureTime, err := time.Parse(time.RFC3339, req.DepartureTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "departure_time must be RFC3339"})
		return
	}
	returnTime, err := time.Parse(time.RFC3339, req.ReturnTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "return_time must be RFC3339"})
		return
	}

	result, err := h.submissionService.Submit(c.Request.Context(), service.SubmitRequest{
		Requester: service.RequesterProfile{
			ID:           req.RequesterID,
			Name:         req.RequesterName,
			Email:        req.RequesterEmail,
			ManagerEmail: req.ManagerEmail,
			Role:         req.Role,
		},
		Departure:      req.Departure,
		Destination:    req.Destination,
		DepartureTime:  departureTime,
		ReturnTime:     returnTime,
		DistanceKm:     req.DistanceKm,
		VehicleType:    entity.VehicleType(req.VehicleType),
		PassengerCount: req.PassengerCount,
		CCEmails:       req.CCEmails,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data: gin.H{
			"trip":    result.Trip,
			"message": result.Message,
		},
	})
}

// GetTrip handles GET /api/v1/trips/:id
func (h *Handlers) GetTrip(c *gin.Context) {
	trip, err := h.submissionService.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: trip})
}

// ListTrips handles GET /api/v1/trips
func (h *Handlers) ListTrips(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
		Limit  int    `form:"limit"`
		Offset int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	trips, err := h.submissionService.ListTrips(c.Request.Context(), query.Status, query.Limit, query.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: trips})
}

// CancelTrip handles POST /api/v1/trips/:id/cancel
func (h *Handlers) CancelTrip(c *gin.Context) {
	actor := c.GetHeader(actorHeader)
	if actor == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: actorHeader + " header is required"})
		return
	}

	trip, err := h.decisionService.Cancel(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: trip})
}

// DecideByToken handles GET /approval/decide. It renders a small HTML page
// because the caller is a manager clicking a link in their mail client.
func (h *Handlers) DecideByToken(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", outcomePage("Invalid link", "The decision link is malformed. Please use the link from the approval email."))
		return
	}

	result, err := h.decisionService.DecideByToken(c.Request.Context(), raw)
	if err != nil {
		h.logger.Error("Token decision failed", "error", err)
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", outcomePage("Something went wrong", "The decision could not be recorded. Please try again later."))
		return
	}

	switch result.Outcome {
	case service.OutcomeApproved:
		c.Data(http.StatusOK, "text/html; charset=utf-8", outcomePage("Trip approved",
			fmt.Sprintf("The trip to %s has been approved. The requester has been notified.", result.Trip.Destination)))
	case service.OutcomeRejected:
		c.Data(http.StatusOK, "text/html; charset=utf-8", outcomePage("Trip rejected",
			fmt.Sprintf("The trip to %s has been rejected. The requester has been notified.", result.Trip.Destination)))
	case service.OutcomeAlreadyProcessed:
		c.Data(http.StatusConflict, "text/html; charset=utf-8", outcomePage("Already decided",
			"This request has already been decided. No further action is needed."))
	case service.OutcomeExpired:
		c.Data(http.StatusGone, "text/html; charset=utf-8", outcomePage("Link expired",
			"This approval link has expired. An administrator has been notified and can settle the request."))
	default:
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", outcomePage("Invalid link",
			"The decision link is invalid. Please use the link from the approval email."))
	}
}

// requireAdmin guards the /admin route group.
func (h *Handlers) requireAdmin(c *gin.Context) {
	actor := c.GetHeader(actorHeader)
	if actor == "" || !h.decisionService.IsAdmin(actor) {
		c.AbortWithStatusJSON(http.StatusForbidden, Response{Success: false, Error: "admin privileges required"})
		return
	}
	c.Next()
}

// AdminOverride handles POST /api/v1/admin/trips/:id/override
func (h *Handlers) AdminOverride(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	action := entity.DecisionAction(req.Action)
	if !action.IsValid() {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "action must be APPROVE or REJECT"})
		return
	}

	trip, err := h.decisionService.AdminOverride(c.Request.Context(),
		c.Param("id"), action, req.Reason, c.GetHeader(actorHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: trip})
}

// RunOptimizer handles POST /api/v1/admin/optimize
func (h *Handlers) RunOptimizer(c *gin.Context) {
	result, err := h.optimizerService.Propose(c.Request.Context(), c.GetHeader(actorHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetGroup handles GET /api/v1/groups/:id
func (h *Handlers) GetGroup(c *gin.Context) {
	group, err := h.optimizerService.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: group})
}

// ApproveGroup handles POST /api/v1/admin/groups/:id/approve
func (h *Handlers) ApproveGroup(c *gin.Context) {
	group, err := h.optimizerService.ApproveGroup(c.Request.Context(), c.Param("id"), c.GetHeader(actorHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: group})
}

// RejectGroup handles POST /api/v1/admin/groups/:id/reject
func (h *Handlers) RejectGroup(c *gin.Context) {
	group, err := h.optimizerService.RejectGroup(c.Request.Context(), c.Param("id"), c.GetHeader(actorHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: group})
}

// QueryAudit handles GET /api/v1/audit
func (h *Handlers) QueryAudit(c *gin.Context) {
	var query struct {
		TripID string `form:"trip_id"`
		Actor  string `form:"actor"`
		Action string `form:"action"`
		Limit  int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	if query.Limit <= 0 || query.Limit > 500 {
		query.Limit = 100
	}

	entries, err := h.auditService.Query(c.Request.Context(), port.AuditFilter{
		TripID: query.TripID,
		Actor:  query.Actor,
		Action: entity.AuditAction(query.Action),
		Limit:  query.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// respondError maps service errors to HTTP status codes.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var duplicateErr *service.DuplicateError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: validationErr.Error()})
	case errors.As(err, &duplicateErr):
		c.JSON(http.StatusConflict, Response{Success: false, Error: duplicateErr.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "not found"})
	case errors.Is(err, service.ErrStateConflict):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "not authorized"})
	default:
		h.logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}

func outcomePage(title, detail string) []byte {
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; max-width: 36em; margin: 4em auto;">
<h2>%s</h2>
<p>%s</p>
</body>
</html>`, title, title, detail))
}
