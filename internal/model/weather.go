package model

import "time"

// WeatherRecord 是天气数据文件中的一行：某个坐标某一天的午后观测。
type WeatherRecord struct {
	Date                time.Time
	Lat                 float64
	Lon                 float64
	AfternoonTemp       float64 // 开尔文
	Precip              float64 // mm
	WindMaxSpeed        float64 // m/s
	HumidityAfternoon   float64 // %
	CloudCoverAfternoon float64 // %
}

// EventCriteria 描述一种活动理想的天气条件。
type EventCriteria struct {
	TempRange   [2]float64 `json:"temp_range"` // 摄氏度 [min, max]
	MaxPrecip   float64    `json:"max_precip"`
	MaxWind     float64    `json:"max_wind"`
	MaxHumidity float64    `json:"max_humidity"`
	MaxClouds   float64    `json:"max_clouds"`
}

// WeatherDay 是一天的评分结果。
type WeatherDay struct {
	Date                string  `json:"date"`
	Score               float64 `json:"score"`
	TempCelsius         float64 `json:"temp_celsius"`
	Precip              float64 `json:"precip"`
	WindMaxSpeed        float64 `json:"wind_max_speed"`
	HumidityAfternoon   float64 `json:"humidity_afternoon"`
	CloudCoverAfternoon float64 `json:"cloud_cover_afternoon"`
}

// EventPlan 是一次活动规划的结果，BestDays 按评分从高到低排列。
type EventPlan struct {
	City     string       `json:"city"`
	Event    string       `json:"event"`
	Month    int          `json:"month"`
	Year     int          `json:"year"`
	BestDays []WeatherDay `json:"best_days"`
	Message  string       `json:"message"`
}
