package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/langchou/evtrip/internal/models"
	"github.com/langchou/evtrip/internal/service"
)

// parseSearchArea 解析 lat/lng/radius 查询参数，出错时已写入响应
func (h *Handler) parseSearchArea(c *gin.Context) (lat, lng, radius float64, ok bool) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil || !(models.LatLng{Lat: lat, Lng: lng}).Valid() {
		badRequest(c, service.ReasonInvalidCoord, "lat and lng must be valid coordinates")
		return 0, 0, 0, false
	}

	radius = h.stations.DefaultRadiusKm()
	if v := c.Query("radius"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 || r > service.MaxChargingRadiusKm {
			badRequest(c, service.ReasonInvalidRadius, "radius must be a positive number of kilometers")
			return 0, 0, 0, false
		}
		radius = r
	}
	return lat, lng, radius, true
}

func respondStations(c *gin.Context, stations []models.Station, params gin.H) {
	c.JSON(http.StatusOK, gin.H{
		"stations":      stations,
		"count":         len(stations),
		"search_params": params,
	})
}

// NearbyStations 查询坐标附近的充电站
func (h *Handler) NearbyStations(c *gin.Context) {
	lat, lng, radius, ok := h.parseSearchArea(c)
	if !ok {
		return
	}

	stations, err := h.stations.FindNear(c.Request.Context(), lat, lng, radius)
	if err != nil {
		h.respondError(c, err, "Failed to fetch stations")
		return
	}

	respondStations(c, stations, gin.H{
		"latitude":  lat,
		"longitude": lng,
		"radius_km": radius,
	})
}

// SearchStations 按运营商、接口类型、功率和可用状态筛选附近充电站
func (h *Handler) SearchStations(c *gin.Context) {
	lat, lng, radius, ok := h.parseSearchArea(c)
	if !ok {
		return
	}

	q := service.StationQuery{
		Operator:       c.Query("operator"),
		ConnectionType: c.Query("connection_type"),
	}
	if q.ConnectionType == "" {
		q.ConnectionType = c.Query("charger_type")
	}
	if v := c.Query("min_power_kw"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 {
			badRequest(c, service.ReasonInvalidRange, "min_power_kw must be a non-negative number")
			return
		}
		q.MinPowerKW = p
	}
	if v := c.Query("available_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, service.ReasonInvalidRange, "available_only must be a boolean")
			return
		}
		q.AvailableOnly = b
	}

	stations, err := h.stations.Search(c.Request.Context(), lat, lng, radius, q)
	if err != nil {
		h.respondError(c, err, "Failed to search stations")
		return
	}

	respondStations(c, stations, gin.H{
		"latitude":        lat,
		"longitude":       lng,
		"radius_km":       radius,
		"operator":        q.Operator,
		"connection_type": q.ConnectionType,
		"min_power_kw":    q.MinPowerKW,
		"available_only":  q.AvailableOnly,
	})
}
