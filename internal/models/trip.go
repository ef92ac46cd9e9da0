package models

import "time"

// Trip 行程记录，创建后不可修改
type Trip struct {
	ID                     string    `json:"trip_id" db:"trip_id"`
	UserID                 string    `json:"user_id" db:"user_id"`
	CarType                string    `json:"car_type" db:"car_type"`
	BatteryLevelStart      float64   `json:"battery_level_start" db:"battery_level_start"` // 0-100
	StartLat               float64   `json:"start_lat" db:"start_lat"`
	StartLng               float64   `json:"start_lng" db:"start_lng"`
	EndLat                 float64   `json:"end_lat" db:"end_lat"`
	EndLng                 float64   `json:"end_lng" db:"end_lng"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
	DistanceMeters         float64   `json:"distance_meters" db:"distance_meters"`
	DurationSeconds        float64   `json:"duration_seconds" db:"duration_seconds"`
	AvgSpeedKph            float64   `json:"avg_speed_kph" db:"avg_speed_kph"`
	RouteGeometry          Geometry  `json:"route_geometry" db:"route_geometry"`                                         // JSONB
	EnergyUsedKwh          *float64  `json:"energy_used_kwh,omitempty" db:"energy_used_kwh"`                             // 预计耗电量 (kWh)
	Cost                   *float64  `json:"cost,omitempty" db:"cost"`                                                   // 预计电费
	StartBatteryKwh        *float64  `json:"start_battery_kwh,omitempty" db:"start_battery_kwh"`                         // 出发时电池电量 (kWh)
	BatteryDurationSeconds *float64  `json:"battery_duration_seconds,omitempty" db:"battery_duration_seconds"`           // 剩余电量可行驶时长
}

// TripFilter 行程搜索条件，所有条件之间为 AND 关系，nil 表示不限制
type TripFilter struct {
	UserID      *string    `json:"user_id,omitempty"`
	CarTypes    []string   `json:"car_types,omitempty"`
	MinDuration *float64   `json:"min_duration,omitempty"` // 秒
	MaxDuration *float64   `json:"max_duration,omitempty"`
	MinDistance *float64   `json:"min_distance,omitempty"` // 米
	MaxDistance *float64   `json:"max_distance,omitempty"`
	MinSpeed    *float64   `json:"min_speed,omitempty"` // km/h
	MaxSpeed    *float64   `json:"max_speed,omitempty"`
	MinEnergy   *float64   `json:"min_energy,omitempty"` // kWh
	MaxEnergy   *float64   `json:"max_energy,omitempty"`
	MinCost     *float64   `json:"min_cost,omitempty"`
	MaxCost     *float64   `json:"max_cost,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"` // created_at 下限（含）
	EndDate     *time.Time `json:"end_date,omitempty"`   // created_at 上限（含）
}

// TripStats 用户行程统计
type TripStats struct {
	TotalTrips       int64   `json:"total_trips"`
	TotalCost        float64 `json:"total_cost"`
	TotalEnergyKwh   float64 `json:"total_energy_kwh"`
	TotalDistanceKm  float64 `json:"total_distance_km"`
	AvgCostPerTrip   float64 `json:"avg_cost_per_trip"`
	AvgEnergyPerTrip float64 `json:"avg_energy_per_trip"`
}
