// Package osrm 封装 OSRM 驾车路线服务
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/models"
)

var (
	// ErrRouteUnavailable 路线服务失败或没有返回路线
	ErrRouteUnavailable = errors.New("route unavailable")
	// ErrInvalidCoordinate 坐标不是合法的 WGS84 坐标
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Route 路线结果
type Route struct {
	DistanceMeters  float64         `json:"distance_m"`
	DurationSeconds float64         `json:"duration_s"`
	Geometry        models.Geometry `json:"geometry"` // [经度, 纬度]
}

// routeResponse OSRM /route 响应
type routeResponse struct {
	Code    string `json:"code"` // "Ok" 成功
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"` // 米
		Duration float64 `json:"duration"` // 秒
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Client OSRM 路线客户端，不做重试，由调用方决定
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 创建 OSRM 客户端
// baseURL 形如 http://router.project-osrm.org/route/v1/driving/
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetRoute 计算起点到终点的驾车路线
// 参数按 (纬度, 经度) 传入；OSRM 要求经度在前，转换只在这里进行
func (c *Client) GetRoute(ctx context.Context, start, end models.LatLng) (*Route, error) {
	if !start.Valid() || !end.Valid() {
		return nil, fmt.Errorf("%w: start=%v end=%v", ErrInvalidCoordinate, start, end)
	}

	apiURL := c.baseURL + coordinatePath(start, end) + "?" + url.Values{
		"geometries": {"geojson"},
		"overview":   {"full"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("OSRM request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(body))))
		return nil, fmt.Errorf("%w: osrm returned status %d", ErrRouteUnavailable, resp.StatusCode)
	}

	var result routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRouteUnavailable, err)
	}

	if result.Code != "Ok" {
		return nil, fmt.Errorf("%w: osrm code %s: %s", ErrRouteUnavailable, result.Code, result.Message)
	}
	if len(result.Routes) == 0 {
		return nil, fmt.Errorf("%w: no routes returned", ErrRouteUnavailable)
	}

	first := result.Routes[0]
	if len(first.Geometry.Coordinates) == 0 {
		return nil, fmt.Errorf("%w: empty route geometry", ErrRouteUnavailable)
	}

	geometry := make(models.Geometry, len(first.Geometry.Coordinates))
	for i, pt := range first.Geometry.Coordinates {
		geometry[i] = models.LngLat(pt)
	}

	c.logger.Debug("Route computed",
		zap.Float64("distance_m", first.Distance),
		zap.Float64("duration_s", first.Duration),
		zap.Int("points", len(geometry)))

	return &Route{
		DistanceMeters:  first.Distance,
		DurationSeconds: first.Duration,
		Geometry:        geometry,
	}, nil
}

// coordinatePath 生成 "lng1,lat1;lng2,lat2" 路径段
func coordinatePath(start, end models.LatLng) string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", start.Lng, start.Lat, end.Lng, end.Lat)
}
