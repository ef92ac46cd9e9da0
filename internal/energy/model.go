// Package energy 根据车型参数估算行程能耗、电费与剩余续航时长
package energy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/langchou/evtrip/internal/models"
)

// 速度档位范围 (km/h)
const (
	MinSpeedBucket = 30
	MaxSpeedBucket = 150
	bucketStep     = 10
)

// ErrUnknownVehicleProfile 车型没有对应的参考数据
var ErrUnknownVehicleProfile = errors.New("unknown vehicle profile")

// ProfileSource 车型参考数据来源；找不到时返回 (nil, nil)
type ProfileSource interface {
	GetProfile(ctx context.Context, name string) (*models.VehicleProfile, error)
}

// Estimate 能耗估算结果
type Estimate struct {
	EnergyKwh              float64  `json:"energy_kwh"`
	CostDollars            float64  `json:"cost"`
	StartBatteryKwh        float64  `json:"start_battery_kwh"`
	BatteryDurationSeconds *float64 `json:"battery_duration_seconds,omitempty"`
}

// Model 能耗模型
type Model struct {
	profiles ProfileSource
}

// NewModel 创建能耗模型
func NewModel(profiles ProfileSource) *Model {
	return &Model{profiles: profiles}
}

// Profile 获取车型参考数据
func (m *Model) Profile(ctx context.Context, vehicleType string) (*models.VehicleProfile, error) {
	profile, err := m.profiles.GetProfile(ctx, vehicleType)
	if err != nil {
		return nil, fmt.Errorf("load vehicle profile %q: %w", vehicleType, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicleProfile, vehicleType)
	}
	return profile, nil
}

// Estimate 按车型估算能耗；车型不存在时返回 ErrUnknownVehicleProfile
func (m *Model) Estimate(ctx context.Context, vehicleType string, avgSpeedKph, distanceM, batteryPct float64) (*Estimate, error) {
	profile, err := m.Profile(ctx, vehicleType)
	if err != nil {
		return nil, err
	}
	est := EstimateWithProfile(profile, avgSpeedKph, distanceM, batteryPct)
	return &est, nil
}

// EstimateWithProfile 纯计算：二次能耗模型 + 速度档位续航表
func EstimateWithProfile(p *models.VehicleProfile, avgSpeedKph, distanceM, batteryPct float64) Estimate {
	energy := EnergyKwh(p, avgSpeedKph, distanceM)
	est := Estimate{
		EnergyKwh:       energy,
		CostDollars:     energy * p.CostPerKwh,
		StartBatteryKwh: batteryPct / 100 * p.BatteryCapacityKwh,
	}
	if secs, ok := RemainingDuration(p, avgSpeedKph, batteryPct); ok {
		est.BatteryDurationSeconds = &secs
	}
	return est
}

// EfficiencyWhPerKm 每公里能耗 (Wh/km)，不会小于 0
func EfficiencyWhPerKm(p *models.VehicleProfile, speedKph float64) float64 {
	wh := p.CoefA + p.CoefB*speedKph + p.CoefC*speedKph*speedKph
	return math.Max(wh, 0)
}

// EnergyKwh 行程耗电量 (kWh)
func EnergyKwh(p *models.VehicleProfile, speedKph, distanceM float64) float64 {
	if distanceM <= 0 {
		return 0
	}
	return (distanceM / 1000) * EfficiencyWhPerKm(p, speedKph) / 1000
}

// SpeedBucket 将平均车速四舍五入到最近的 10 km/h（0.5 远离零进位，35 -> 40），
// 再限制在 [30, 150] 区间内
func SpeedBucket(speedKph float64) int {
	bucket := int(math.Round(speedKph/bucketStep)) * bucketStep
	if bucket < MinSpeedBucket {
		return MinSpeedBucket
	}
	if bucket > MaxSpeedBucket {
		return MaxSpeedBucket
	}
	return bucket
}

// RemainingDuration 根据速度档位表计算当前电量可行驶的秒数；
// 车型没有对应档位数据时返回 false
func RemainingDuration(p *models.VehicleProfile, avgSpeedKph, batteryPct float64) (float64, bool) {
	if len(p.SpeedBuckets) == 0 {
		return 0, false
	}
	hours, ok := p.SpeedBuckets[SpeedBucket(avgSpeedKph)]
	if !ok {
		return 0, false
	}
	return hours * 3600 * batteryPct / 100, true
}
