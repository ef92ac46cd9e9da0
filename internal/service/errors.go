package service

import (
	"errors"

	"github.com/langchou/evtrip/internal/api/osrm"
	"github.com/langchou/evtrip/internal/energy"
)

// 服务层错误，handler 根据这些错误决定响应码
var (
	ErrUnknownVehicleProfile = energy.ErrUnknownVehicleProfile
	ErrRouteUnavailable      = osrm.ErrRouteUnavailable
	ErrStorage               = errors.New("storage error")
	ErrPartialAnnotation     = errors.New("station annotations partially saved")
	ErrTripNotFound          = errors.New("trip not found")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUsernameTaken         = errors.New("username already taken")
)

// 校验失败原因
const (
	ReasonMissingField    = "missing_field"
	ReasonInvalidBattery  = "invalid_battery_level"
	ReasonInvalidCoord    = "invalid_coordinates"
	ReasonInvalidRadius   = "invalid_radius"
	ReasonInvalidRange    = "invalid_range"
	ReasonUnknownVehicle  = "unknown_vehicle_profile"
	ReasonInvalidPassword = "invalid_password"
)

// ValidationError 输入校验失败，不会触发任何外部调用
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(reason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}
