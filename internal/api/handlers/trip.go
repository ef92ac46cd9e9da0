package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/langchou/evtrip/internal/api/middleware"
	"github.com/langchou/evtrip/internal/models"
	"github.com/langchou/evtrip/internal/service"
)

// CreateTrip 创建行程
func (h *Handler) CreateTrip(c *gin.Context) {
	var body createTripBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	if field := body.missing(); field != "" {
		badRequest(c, service.ReasonMissingField, field+" is required")
		return
	}

	req := service.CreateTripRequest{
		UserID:            middleware.CurrentUserID(c),
		StartLat:          float64(*body.StartLat),
		StartLng:          float64(*body.StartLng),
		EndLat:            float64(*body.EndLat),
		EndLng:            float64(*body.EndLng),
		CarType:           strings.TrimSpace(body.CarType),
		BatteryLevelStart: float64(*body.BatteryLevelStart),
		ChargingRadiusKm:  body.ChargingRadiusKm.ptr(),
	}

	res, err := h.trips.CreateTrip(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "Failed to create trip")
		return
	}

	resp := gin.H{
		"trip_id": res.Trip.ID,
		"trip":    res.Trip,
		"route": gin.H{
			"distance_meters":  res.Trip.DistanceMeters,
			"duration_seconds": res.Trip.DurationSeconds,
			"avg_speed_kph":    res.Trip.AvgSpeedKph,
			"geometry":         res.Trip.RouteGeometry,
		},
		"energy":         res.Energy,
		"stations":       res.Stations,
		"stations_saved": res.StationsSaved,
	}
	if len(res.Warnings) > 0 {
		resp["warnings"] = res.Warnings
	}
	c.JSON(http.StatusCreated, resp)
}

// ListTrips 获取当前用户的行程列表
func (h *Handler) ListTrips(c *gin.Context) {
	trips, err := h.trips.ListTrips(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		h.respondError(c, err, "Failed to list trips")
		return
	}

	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

// SearchTrips 多条件搜索行程
func (h *Handler) SearchTrips(c *gin.Context) {
	var filter models.TripFilter
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&filter); err != nil {
			badRequest(c, "invalid_request", "Invalid search filters")
			return
		}
	}

	trips, err := h.trips.SearchTrips(c.Request.Context(), middleware.CurrentUserID(c), filter)
	if err != nil {
		h.respondError(c, err, "Failed to search trips")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": trips,
		"count": len(trips),
	})
}

// GetTrip 获取行程详情及沿途充电站
func (h *Handler) GetTrip(c *gin.Context) {
	detail, err := h.trips.GetTrip(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get trip")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

// GetTripStats 获取当前用户的行程统计
func (h *Handler) GetTripStats(c *gin.Context) {
	stats, err := h.trips.Stats(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		h.respondError(c, err, "Failed to get trip stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
