package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"
	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/api/ocm"
	"github.com/langchou/evtrip/internal/models"
)

const (
	// geohash 7 位约 150m，落在同一格的采样点共用一次查询结果
	cacheGeohashPrecision = 7
	maxCacheEntries       = 10000
)

// StationDirectory 外部充电站目录
type StationDirectory interface {
	NearbyPOIs(ctx context.Context, lat, lng, radiusKm float64, maxResults int) ([]ocm.POI, error)
}

// StationFinderOptions 沿途搜索参数
type StationFinderOptions struct {
	SampleStride int
	RadiusKm     float64
	MaxResults   int
	CacheTTL     time.Duration // 0 表示不缓存
}

type poiCacheEntry struct {
	pois      []ocm.POI
	origin    models.LatLng // 实际查询的坐标，Distance 相对于该点
	expiresAt time.Time
}

// StationQuery 充电站筛选条件，零值不筛选
type StationQuery struct {
	Operator       string  // 运营商名称，包含匹配，忽略大小写
	ConnectionType string  // 接口类型，包含匹配，忽略大小写
	MinPowerKW     float64
	AvailableOnly  bool    // 只保留状态为 Available 的接口
}

// StatusAvailable 可用接口的状态前缀
const StatusAvailable = "Available"

// StationFinder 沿路线搜索充电站
type StationFinder struct {
	directory StationDirectory
	opts      StationFinderOptions
	logger    *zap.Logger

	cache   map[string]poiCacheEntry
	cacheMu sync.RWMutex
}

// NewStationFinder 创建充电站搜索器
func NewStationFinder(directory StationDirectory, opts StationFinderOptions, logger *zap.Logger) *StationFinder {
	if opts.SampleStride <= 0 {
		opts.SampleStride = 10
	}
	if opts.RadiusKm <= 0 {
		opts.RadiusKm = 5
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	return &StationFinder{
		directory: directory,
		opts:      opts,
		logger:    logger,
		cache:     make(map[string]poiCacheEntry),
	}
}

// DefaultRadiusKm 默认搜索半径
func (f *StationFinder) DefaultRadiusKm() float64 {
	return f.opts.RadiusKm
}

// SamplePoints 从索引 0 开始每 stride 个点取一个，终点总是包含在内
func SamplePoints(geom models.Geometry, stride int) []models.LngLat {
	if len(geom) == 0 {
		return nil
	}
	if stride <= 0 {
		stride = 1
	}

	points := make([]models.LngLat, 0, len(geom)/stride+2)
	for i := 0; i < len(geom); i += stride {
		points = append(points, geom[i])
	}
	if (len(geom)-1)%stride != 0 {
		points = append(points, geom[len(geom)-1])
	}
	return points
}

// NormalizePOI 转换为规范化的充电站记录
// 缺少 ID 或经纬度都无法解析时返回 false
func NormalizePOI(p ocm.POI) (models.Station, bool) {
	if p.ID == "" || p.AddressInfo == nil {
		return models.Station{}, false
	}
	info := p.AddressInfo
	if info.Latitude == nil && info.Longitude == nil {
		return models.Station{}, false
	}

	st := models.Station{
		ID:         string(p.ID),
		Operator:   operatorTitle(p.OperatorInfo),
		Name:       stringOr(info.Title, models.DefaultStationName),
		Latitude:   floatOr(info.Latitude),
		Longitude:  floatOr(info.Longitude),
		Address:    stringOr(info.AddressLine1, models.DefaultStationAddress),
		DistanceKm: floatOr(info.Distance),
	}

	for _, c := range p.Connections {
		conn := models.DefaultConnection()
		if c.ConnectionType != nil {
			conn.Type = stringOr(c.ConnectionType.Title, models.DefaultConnectionType)
		}
		if c.StatusType != nil {
			conn.Status = stringOr(c.StatusType.Title, models.DefaultStatus)
		}
		conn.PowerKW = floatOr(c.PowerKW)
		st.Connections = append(st.Connections, conn)
	}
	if len(st.Connections) == 0 {
		st.Connections = []models.Connection{models.DefaultConnection()}
	}

	return st, true
}

func operatorTitle(t *ocm.Titled) string {
	if t == nil || t.Title == nil {
		return ""
	}
	return *t.Title
}

// normalizeFrom 规范化并以 at 为基准修正距离
// 缓存命中时结果来自同一 geohash 格内的另一采样点，Distance 需按坐标重算
func normalizeFrom(p ocm.POI, at, origin models.LatLng) (models.Station, bool) {
	st, ok := NormalizePOI(p)
	if !ok {
		return st, false
	}
	if at != origin && p.AddressInfo.Latitude != nil && p.AddressInfo.Longitude != nil {
		st.DistanceKm = at.DistanceKm(models.LatLng{Lat: st.Latitude, Lng: st.Longitude})
	}
	return st, true
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func floatOr(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// FindAlongRoute 按采样点查询沿途充电站，按站点 ID 去重（先出现者保留）
// 单个采样点查询失败只记录日志，始终返回列表（可能为空）
func (f *StationFinder) FindAlongRoute(ctx context.Context, geom models.Geometry, radiusKm float64) []models.Station {
	if radiusKm <= 0 {
		radiusKm = f.opts.RadiusKm
	}

	samples := SamplePoints(geom, f.opts.SampleStride)
	seen := make(map[string]bool)
	stations := make([]models.Station, 0)
	failed := 0

	for _, pt := range samples {
		if ctx.Err() != nil {
			f.logger.Warn("Station scan interrupted", zap.Error(ctx.Err()))
			break
		}

		at := models.LatLng{Lat: pt.Lat(), Lng: pt.Lng()}
		pois, origin, err := f.lookup(ctx, at, radiusKm)
		if err != nil {
			failed++
			f.logger.Warn("Station lookup failed for sample point",
				zap.Float64("lat", pt.Lat()),
				zap.Float64("lng", pt.Lng()),
				zap.Error(err))
			continue
		}

		for _, poi := range pois {
			st, ok := normalizeFrom(poi, at, origin)
			if !ok || seen[st.ID] {
				continue
			}
			seen[st.ID] = true
			stations = append(stations, st)
		}
	}

	f.logger.Debug("Station scan finished",
		zap.Int("samples", len(samples)),
		zap.Int("failed", failed),
		zap.Int("stations", len(stations)))

	return stations
}

// FindNear 查询单个坐标附近的充电站
func (f *StationFinder) FindNear(ctx context.Context, lat, lng, radiusKm float64) ([]models.Station, error) {
	return f.Search(ctx, lat, lng, radiusKm, StationQuery{})
}

// Search 查询坐标附近的充电站并按条件筛选
// 只保留满足接口条件的接口，没有剩余接口的站点被排除
func (f *StationFinder) Search(ctx context.Context, lat, lng, radiusKm float64, q StationQuery) ([]models.Station, error) {
	if radiusKm <= 0 {
		radiusKm = f.opts.RadiusKm
	}
	at := models.LatLng{Lat: lat, Lng: lng}
	pois, origin, err := f.lookup(ctx, at, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("nearby stations: %w", err)
	}

	stations := make([]models.Station, 0, len(pois))
	seen := make(map[string]bool)
	for _, poi := range pois {
		st, ok := normalizeFrom(poi, at, origin)
		if !ok || seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		if st, ok = q.apply(st); ok {
			stations = append(stations, st)
		}
	}
	return stations, nil
}

func (q StationQuery) apply(st models.Station) (models.Station, bool) {
	if q.Operator != "" && !containsFold(st.Operator, q.Operator) {
		return st, false
	}
	if q.ConnectionType == "" && q.MinPowerKW <= 0 && !q.AvailableOnly {
		return st, true
	}

	conns := make([]models.Connection, 0, len(st.Connections))
	for _, c := range st.Connections {
		if q.ConnectionType != "" && !containsFold(c.Type, q.ConnectionType) {
			continue
		}
		if c.PowerKW < q.MinPowerKW {
			continue
		}
		if q.AvailableOnly && !strings.HasPrefix(strings.ToLower(c.Status), strings.ToLower(StatusAvailable)) {
			continue
		}
		conns = append(conns, c)
	}
	if len(conns) == 0 {
		return st, false
	}
	st.Connections = conns
	return st, true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (f *StationFinder) lookup(ctx context.Context, at models.LatLng, radiusKm float64) ([]ocm.POI, models.LatLng, error) {
	if f.opts.CacheTTL <= 0 {
		pois, err := f.directory.NearbyPOIs(ctx, at.Lat, at.Lng, radiusKm, f.opts.MaxResults)
		return pois, at, err
	}

	key := fmt.Sprintf("%s:%g:%d", geohash.EncodeWithPrecision(at.Lat, at.Lng, cacheGeohashPrecision), radiusKm, f.opts.MaxResults)

	f.cacheMu.RLock()
	entry, ok := f.cache[key]
	f.cacheMu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.pois, entry.origin, nil
	}

	pois, err := f.directory.NearbyPOIs(ctx, at.Lat, at.Lng, radiusKm, f.opts.MaxResults)
	if err != nil {
		return nil, at, err
	}

	f.cacheMu.Lock()
	if len(f.cache) > maxCacheEntries {
		f.cache = make(map[string]poiCacheEntry)
	}
	f.cache[key] = poiCacheEntry{pois: pois, origin: at, expiresAt: time.Now().Add(f.opts.CacheTTL)}
	f.cacheMu.Unlock()

	return pois, at, nil
}
