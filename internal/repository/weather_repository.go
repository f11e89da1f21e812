package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"tzappu-go/internal/model"
)

// weatherColumns 是天气数据文件必须包含的列，其余列忽略。
var weatherColumns = []string{
	"date", "lat", "lon", "afternoon_temp", "precip",
	"wind_max_speed", "humidity_afternoon", "cloud_cover_afternoon",
}

var weatherDateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// WeatherRepository 提供按坐标查询的每日天气记录，结果按文件中的顺序返回。
type WeatherRepository interface {
	FindByLocation(lat, lon float64) []model.WeatherRecord
	Count() int
}

type coordinate struct {
	lat, lon float64
}

type csvWeatherRepository struct {
	byLocation map[coordinate][]model.WeatherRecord
	count      int
}

// NewCSVWeatherRepository 一次性读取 CSV 文件并按坐标建立索引。
func NewCSVWeatherRepository(path string) (WeatherRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开天气数据文件失败: %w", err)
	}
	defer f.Close()
	return ReadWeatherCSV(f)
}

// ReadWeatherCSV 从 r 解析天气数据。列按表头名称匹配。
func ReadWeatherCSV(r io.Reader) (WeatherRepository, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取天气数据表头失败: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range weatherColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("天气数据缺少列 %q", col)
		}
	}

	repo := &csvWeatherRepository{byLocation: make(map[coordinate][]model.WeatherRecord)}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取天气数据第 %d 行失败: %w", line, err)
		}
		rec, err := parseWeatherRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("解析天气数据第 %d 行失败: %w", line, err)
		}
		key := coordinate{lat: rec.Lat, lon: rec.Lon}
		repo.byLocation[key] = append(repo.byLocation[key], rec)
		repo.count++
	}
	return repo, nil
}

func parseWeatherRow(row []string, index map[string]int) (model.WeatherRecord, error) {
	var rec model.WeatherRecord
	date, err := parseWeatherDate(row[index["date"]])
	if err != nil {
		return rec, err
	}
	rec.Date = date

	fields := []struct {
		col string
		dst *float64
	}{
		{"lat", &rec.Lat},
		{"lon", &rec.Lon},
		{"afternoon_temp", &rec.AfternoonTemp},
		{"precip", &rec.Precip},
		{"wind_max_speed", &rec.WindMaxSpeed},
		{"humidity_afternoon", &rec.HumidityAfternoon},
		{"cloud_cover_afternoon", &rec.CloudCoverAfternoon},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[index[f.col]]), 64)
		if err != nil {
			return rec, fmt.Errorf("列 %s: %w", f.col, err)
		}
		*f.dst = v
	}
	return rec, nil
}

func parseWeatherDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range weatherDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 %q", s)
}

func (r *csvWeatherRepository) FindByLocation(lat, lon float64) []model.WeatherRecord {
	records := r.byLocation[coordinate{lat: lat, lon: lon}]
	out := make([]model.WeatherRecord, len(records))
	copy(out, records)
	return out
}

func (r *csvWeatherRepository) Count() int {
	return r.count
}
