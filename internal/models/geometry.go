package models

import "math"

// LatLng 经纬度坐标（纬度在前）
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid 检查是否为合法的 WGS84 坐标
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// LngLat GeoJSON 坐标点，顺序为 [经度, 纬度]
type LngLat [2]float64

// Lng 经度
func (p LngLat) Lng() float64 { return p[0] }

// Lat 纬度
func (p LngLat) Lat() float64 { return p[1] }

// Geometry 路线几何：有序的 [经度, 纬度] 点序列
type Geometry []LngLat

// First 起点
func (g Geometry) First() (LngLat, bool) {
	if len(g) == 0 {
		return LngLat{}, false
	}
	return g[0], true
}

// Last 终点
func (g Geometry) Last() (LngLat, bool) {
	if len(g) == 0 {
		return LngLat{}, false
	}
	return g[len(g)-1], true
}

const earthRadiusKm = 6371.0

// DistanceKm 两点间的大圆距离（公里）
func (p LatLng) DistanceKm(q LatLng) float64 {
	phi1 := p.Lat * math.Pi / 180
	phi2 := q.Lat * math.Pi / 180
	dPhi := (q.Lat - p.Lat) * math.Pi / 180
	dLambda := (q.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
