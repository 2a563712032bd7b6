package api

import (
	"net/http"
	"strconv"
	"time"

	"rental-service/internal/catalog"
	"rental-service/internal/engine"
	"rental-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	engine  *engine.Engine
	catalog *catalog.Catalog
}

// NewHandler creates a new HTTP handler
func NewHandler(eng *engine.Engine, cat *catalog.Catalog) *Handler {
	return &Handler{
		engine:  eng,
		catalog: cat,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/houses", h.listProperties)
		v1.GET("/houses/:id", h.getProperty)
		v1.POST("/houses", h.addProperty)
		v1.PUT("/houses/:id", h.updateProperty)
		v1.DELETE("/houses/:id", h.removeProperty)

		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings", h.listBookings)
		v1.GET("/bookings/:id", h.getBooking)
		v1.POST("/bookings/:id/approve", h.approveBooking)
		v1.POST("/bookings/:id/reject", h.rejectBooking)
		v1.POST("/bookings/:id/cancel", h.cancelBooking)

		v1.POST("/payments", h.initiatePayment)
		v1.GET("/payments/:id", h.getPayment)
		v1.POST("/payments/:id/confirm", h.confirmPayment)
		v1.POST("/payments/:id/fail", h.failPayment)

		v1.POST("/view-requests", h.createViewingRequest)
		v1.GET("/view-requests", h.listViewingRequests)
		v1.POST("/view-requests/:id/approve", h.approveViewingRequest)
	}
}

// statusForDenial maps the fixed denial taxonomy to HTTP status codes.
// Raw storage errors never reach the client body.
func statusForDenial(reason engine.Reason) int {
	switch reason {
	case engine.ReasonPropertyNotFound,
		engine.ReasonBookingNotFound,
		engine.ReasonPaymentNotFound:
		return http.StatusNotFound
	case engine.ReasonAmountMismatch,
		engine.ReasonInvalidPhone:
		return http.StatusBadRequest
	case engine.ReasonConflictExhausted:
		return http.StatusServiceUnavailable
	case "":
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func respondError(c *gin.Context, err error) {
	reason := engine.DenialReason(err)
	status := statusForDenial(reason)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{
		"error":  string(reason),
		"detail": err.Error(),
	})
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProperties(c *gin.Context) {
	props, err := h.catalog.ListProperties(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, props)
}

func (h *Handler) getProperty(c *gin.Context) {
	p, err := h.catalog.GetProperty(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) addProperty(c *gin.Context) {
	var in catalog.PropertyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "detail": err.Error()})
		return
	}
	p, err := h.catalog.AddProperty(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProperty(c *gin.Context) {
	var in catalog.PropertyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "detail": err.Error()})
		return
	}
	p, err := h.catalog.UpdateProperty(c.Request.Context(), c.Param("id"), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) removeProperty(c *gin.Context) {
	if err := h.catalog.RemoveProperty(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) createBooking(c *gin.Context) {
	var req engine.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "detail": err.Error()})
		return
	}
	booking, err := h.engine.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) listBookings(c *gin.Context) {
	bookings, err := h.engine.ListBookings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.engine.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) approveBooking(c *gin.Context) {
	booking, err := h.engine.ApproveBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.catalog.InvalidateCache(c.Request.Context())
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) rejectBooking(c *gin.Context) {
	booking, err := h.engine.RejectBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.catalog.InvalidateCache(c.Request.Context())
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) cancelBooking(c *gin.Context) {
	var body struct {
		Actor string `json:"actor"`
	}
	_ = c.ShouldBindJSON(&body)

	booking, err := h.engine.CancelBooking(c.Request.Context(), c.Param("id"), body.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	h.catalog.InvalidateCache(c.Request.Context())
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) initiatePayment(c *gin.Context) {
	var req engine.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "detail": err.Error()})
		return
	}
	payment, err := h.engine.InitiatePayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.engine.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	payment, err := h.engine.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.catalog.InvalidateCache(c.Request.Context())
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) failPayment(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	payment, err := h.engine.FailPayment(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) createViewingRequest(c *gin.Context) {
	var in catalog.ViewingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "detail": err.Error()})
		return
	}
	vr, err := h.catalog.CreateViewingRequest(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vr)
}

func (h *Handler) listViewingRequests(c *gin.Context) {
	vrs, err := h.catalog.ListViewingRequests(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vrs)
}

func (h *Handler) approveViewingRequest(c *gin.Context) {
	vr, err := h.catalog.ApproveViewingRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vr)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
