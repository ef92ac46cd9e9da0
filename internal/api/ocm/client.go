// Package ocm 封装 Open Charge Map 充电站目录接口
package ocm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// POI 充电站原始记录，字段可能缺失
type POI struct {
	ID           StationID    `json:"ID"`
	OperatorInfo *Titled      `json:"OperatorInfo"`
	AddressInfo  *AddressInfo `json:"AddressInfo"`
	Connections  []Connection `json:"Connections"`
}

// AddressInfo 地址信息
type AddressInfo struct {
	Title        *string  `json:"Title"`
	Latitude     *float64 `json:"Latitude"`
	Longitude    *float64 `json:"Longitude"`
	AddressLine1 *string  `json:"AddressLine1"`
	Distance     *float64 `json:"Distance"` // 距查询点距离 (distanceunit)
}

// Connection 充电接口原始记录
type Connection struct {
	ConnectionType *Titled  `json:"ConnectionType"`
	PowerKW        *float64 `json:"PowerKW"`
	StatusType     *Titled  `json:"StatusType"`
}

// Titled 带标题的引用数据
type Titled struct {
	Title *string `json:"Title"`
}

// StationID 站点 ID；接口返回数字，也兼容字符串
type StationID string

// UnmarshalJSON 接受数字或字符串
func (id *StationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("station id: %w", err)
	}
	*id = StationID(n.String())
	return nil
}

// Client Open Charge Map 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 创建充电站目录客户端
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// NearbyPOIs 查询坐标附近 radiusKm 公里内的充电站，最多 maxResults 条
func (c *Client) NearbyPOIs(ctx context.Context, lat, lng, radiusKm float64, maxResults int) ([]POI, error) {
	params := url.Values{}
	params.Set("output", "json")
	params.Set("compact", "false")
	params.Set("verbose", "false")
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Set("distance", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	params.Set("distanceunit", "km")
	params.Set("maxresults", strconv.Itoa(maxResults))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/poi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "EVTrip/1.0 (ev trip planner)")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocm api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pois []POI
	if err := json.NewDecoder(resp.Body).Decode(&pois); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("OCM lookup",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.Float64("radius_km", radiusKm),
		zap.Int("results", len(pois)))

	return pois, nil
}
