package waitlist

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{
		service: service,
	}
}

// respondError maps the engine's error taxonomy onto HTTP status codes
func respondError(ctx *gin.Context, err error) {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		forbiddenErr  *ForbiddenError
		conflictErr   *ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &forbiddenErr):
		ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &conflictErr):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// actingUser extracts the authenticated user's ID and role from the JWT
// claims placed on the context by the auth middleware
func actingUser(ctx *gin.Context) (uuid.UUID, string, bool) {
	userIDVal, exists := ctx.Get("user_id")
	if !exists {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return uuid.Nil, "", false
	}

	userIDStr, ok := userIDVal.(string)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return uuid.Nil, "", false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return uuid.Nil, "", false
	}

	role := ""
	if roleVal, exists := ctx.Get("user_role"); exists {
		role, _ = roleVal.(string)
	}

	return userID, role, true
}

// groupKeyFromQuery parses the slot group tuple from query parameters
func groupKeyFromQuery(ctx *gin.Context) (GroupKey, bool) {
	serviceID, err := uuid.Parse(ctx.Query("service_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service ID"})
		return GroupKey{}, false
	}

	employeeID, err := uuid.Parse(ctx.Query("employee_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid employee ID"})
		return GroupKey{}, false
	}

	requestedAt, err := time.Parse(time.RFC3339, ctx.Query("requested_at"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid requested time, expected RFC3339"})
		return GroupKey{}, false
	}

	return GroupKey{
		ServiceID:   serviceID,
		EmployeeID:  employeeID,
		RequestedAt: requestedAt.UTC(),
	}, true
}

func (c *Controller) Enroll(ctx *gin.Context) {
	var request EnrollRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := validate.Struct(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": err.Error(),
		})
		return
	}

	userID, _, ok := actingUser(ctx)
	if !ok {
		return
	}

	response, err := c.service.Enroll(ctx.Request.Context(), userID, &request)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Successfully joined waitlist",
		"data":    response,
	})
}

func (c *Controller) Cancel(ctx *gin.Context) {
	entryID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry ID"})
		return
	}

	userID, role, ok := actingUser(ctx)
	if !ok {
		return
	}

	if err := c.service.Cancel(ctx.Request.Context(), entryID, userID, role); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Waitlist entry cancelled",
	})
}

func (c *Controller) Confirm(ctx *gin.Context) {
	entryID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry ID"})
		return
	}

	if err := c.service.Confirm(ctx.Request.Context(), entryID); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Slot confirmed",
	})
}

func (c *Controller) GetEntry(ctx *gin.Context) {
	entryID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry ID"})
		return
	}

	response, err := c.service.GetEntry(ctx.Request.Context(), entryID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"data": response,
	})
}

func (c *Controller) Sweep(ctx *gin.Context) {
	result, err := c.service.Sweep(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Sweep completed",
		"data":    result,
	})
}

func (c *Controller) SlotFreed(ctx *gin.Context) {
	var request SlotFreedRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := validate.Struct(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": err.Error(),
		})
		return
	}

	err := c.service.OnSlotFreed(ctx.Request.Context(), request.ServiceID, request.EmployeeID, request.RequestedAt)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Slot freed processed",
	})
}

func (c *Controller) ListEntries(ctx *gin.Context) {
	key, ok := groupKeyFromQuery(ctx)
	if !ok {
		return
	}

	entries, err := c.service.ListGroupEntries(ctx.Request.Context(), key, Status(ctx.Query("status")))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"data":  entries,
		"count": len(entries),
	})
}

func (c *Controller) GetStats(ctx *gin.Context) {
	key, ok := groupKeyFromQuery(ctx)
	if !ok {
		return
	}

	stats, err := c.service.GroupStats(ctx.Request.Context(), key)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

func (c *Controller) GetRecentNotifications(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	notifications, err := c.service.RecentNotifications(ctx.Request.Context(), limit)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"data":  notifications,
		"count": len(notifications),
	})
}

func (c *Controller) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "waitlist",
	})
}
