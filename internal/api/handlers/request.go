package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexFloat 接受 JSON 数字或数字字符串
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number, got %s", string(data))
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(n)
	return nil
}

func (f *flexFloat) ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// createTripBody POST /api/trips/create 请求体
type createTripBody struct {
	StartLat          *flexFloat `json:"start_lat"`
	StartLng          *flexFloat `json:"start_lng"`
	EndLat            *flexFloat `json:"end_lat"`
	EndLng            *flexFloat `json:"end_lng"`
	CarType           string     `json:"car_type"`
	BatteryLevelStart *flexFloat `json:"battery_level_start"`
	ChargingRadiusKm  *flexFloat `json:"charging_radius_km"`
}

// missing 返回第一个缺失的必填字段
func (b *createTripBody) missing() string {
	required := []struct {
		name string
		v    *flexFloat
	}{
		{"start_lat", b.StartLat},
		{"start_lng", b.StartLng},
		{"end_lat", b.EndLat},
		{"end_lng", b.EndLng},
		{"battery_level_start", b.BatteryLevelStart},
	}
	for _, r := range required {
		if r.v == nil {
			return r.name
		}
	}
	if strings.TrimSpace(b.CarType) == "" {
		return "car_type"
	}
	return ""
}

type registerBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
