package models

import "time"

// 充电站字段缺失时的默认值
const (
	DefaultStationName    = "Unknown Station"
	DefaultStationAddress = "No Address"
	DefaultConnectionType = "Unknown"
	DefaultStatus         = "Unknown"
)

// Station 规范化后的充电站（沿途搜索结果）
type Station struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Operator    string       `json:"operator,omitempty"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Address     string       `json:"address"`
	DistanceKm  float64      `json:"distance_km"` // 距采样点的距离
	Connections []Connection `json:"connections"`
}

// Connection 充电接口
type Connection struct {
	Type    string  `json:"type"`
	PowerKW float64 `json:"power_kw"`
	Status  string  `json:"status"`
}

// DefaultConnection 无接口信息时补充的默认接口
func DefaultConnection() Connection {
	return Connection{Type: DefaultConnectionType, PowerKW: 0, Status: DefaultStatus}
}

// TripStation 行程关联的充电站记录，每个接口一行
type TripStation struct {
	ID             string    `json:"id" db:"id"` // trip_id + station_id + 序号
	TripID         string    `json:"trip_id" db:"trip_id"`
	StationID      string    `json:"station_id" db:"station_id"`
	Name           string    `json:"name" db:"name"`
	Latitude       float64   `json:"latitude" db:"latitude"`
	Longitude      float64   `json:"longitude" db:"longitude"`
	Address        string    `json:"address" db:"address"`
	DistanceKm     float64   `json:"distance_km" db:"distance_km"`
	ConnectionType string    `json:"connection_type" db:"connection_type"`
	PowerKW        float64   `json:"power_kw" db:"power_kw"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
