package models

// VehicleProfile 车型参考数据（只读）
//
// 能耗模型: Wh/km = CoefA + CoefB*v + CoefC*v^2，v 为平均车速 (km/h)
type VehicleProfile struct {
	Name               string  `json:"name" db:"name"`
	CoefA              float64 `json:"coef_a" db:"coef_a"`
	CoefB              float64 `json:"coef_b" db:"coef_b"`
	CoefC              float64 `json:"coef_c" db:"coef_c"`
	CostPerKwh         float64 `json:"cost_per_kwh" db:"cost_per_kwh"`
	BatteryCapacityKwh float64 `json:"battery_capacity_kwh" db:"battery_capacity_kwh"`
	// 速度档位 (km/h) -> 满电可行驶时长 (小时)
	SpeedBuckets map[int]float64 `json:"speed_buckets,omitempty"`
}
