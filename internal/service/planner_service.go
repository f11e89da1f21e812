package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tzappu-go/internal/model"
	"tzappu-go/internal/repository"
	"tzappu-go/pkg/log"
)

const (
	// DefaultPlanYear 和 DefaultPlanLimit 是请求未指定时的取值。
	DefaultPlanYear  = 2025
	DefaultPlanLimit = 5

	minPlanYear  = 2020
	maxPlanYear  = 2026
	maxPlanLimit = 5

	kelvinOffset = 273.15
)

type city struct {
	name     string
	lat, lon float64
}

// cities 与天气数据文件中的坐标一一对应，顺序即对外展示的顺序。
var cities = []city{
	{"Alba", 46.06667, 23.58333},
	{"Arad", 46.16667, 21.31667},
	{"Bacau", 46.56667, 26.91667},
	{"Baia Mare", 47.65969, 23.56808},
	{"Bistrita", 47.13316, 24.50069},
	{"Brasov", 45.64861, 25.60613},
	{"Bucuresti", 44.43225, 26.10626},
	{"Buzau", 45.14802, 26.82148},
	{"Cluj", 46.76667, 23.6},
	{"Constanta", 44.18073, 28.63432},
	{"Craiova", 44.31667, 23.8},
	{"Deva", 45.88333, 22.9},
	{"Drobeta-Turnu Severin", 44.63188, 22.65648},
	{"Galati", 45.45, 28.03333},
	{"Iasi", 47.16667, 27.6},
	{"Oradea", 47.06667, 21.93333},
	{"Petrosani", 45.41667, 23.36667},
	{"Pitesti", 44.85, 24.86667},
	{"Ramnicu Valcea", 45.1, 24.36667},
	{"Satu Mare", 47.8, 22.88333},
	{"Sibiu", 45.8, 24.15},
	{"Slobozia", 44.56667, 27.36667},
	{"Suceava", 47.63333, 26.25},
	{"Timisoara", 45.75372, 21.22571},
}

type eventKind struct {
	name     string
	criteria model.EventCriteria
}

var events = []eventKind{
	{"picnic", model.EventCriteria{TempRange: [2]float64{18, 26}, MaxPrecip: 0.5, MaxWind: 4.0, MaxHumidity: 70, MaxClouds: 60}},
	{"festival", model.EventCriteria{TempRange: [2]float64{15, 28}, MaxPrecip: 1.0, MaxWind: 6.0, MaxHumidity: 75, MaxClouds: 80}},
	{"pool_party", model.EventCriteria{TempRange: [2]float64{22, 32}, MaxPrecip: 0.0, MaxWind: 3.0, MaxHumidity: 65, MaxClouds: 40}},
	{"concert", model.EventCriteria{TempRange: [2]float64{12, 25}, MaxPrecip: 0.2, MaxWind: 5.0, MaxHumidity: 80, MaxClouds: 70}},
	{"drumetie", model.EventCriteria{TempRange: [2]float64{8, 22}, MaxPrecip: 0.1, MaxWind: 7.0, MaxHumidity: 80, MaxClouds: 70}},
	{"nunta", model.EventCriteria{TempRange: [2]float64{16, 26}, MaxPrecip: 0.0, MaxWind: 3.0, MaxHumidity: 65, MaxClouds: 30}},
	{"zi_nastere", model.EventCriteria{TempRange: [2]float64{15, 27}, MaxPrecip: 0.3, MaxWind: 4.0, MaxHumidity: 75, MaxClouds: 60}},
}

// PlanRequest 是一次活动规划的输入。Year 和 Limit 由调用方填好默认值。
type PlanRequest struct {
	City  string
	Event string
	Month int
	Year  int
	Limit int
}

// PlannerService 根据历史天气为活动挑选最合适的日子。
type PlannerService interface {
	Plan(ctx context.Context, req PlanRequest) (*model.EventPlan, error)
	Cities() []string
	Events() []string
	Criteria(event string) (model.EventCriteria, bool)
	Available() bool
}

type plannerService struct {
	weather repository.WeatherRepository
	tracer  trace.Tracer
}

// NewPlannerService 创建一个新的 PlannerService。weather 为 nil 时规划接口返回 ErrPlannerUnavailable，
// 城市、活动和评分标准仍可查询。
func NewPlannerService(weather repository.WeatherRepository) PlannerService {
	return &plannerService{
		weather: weather,
		tracer:  otel.Tracer("tzappu-go/internal/service/planner"),
	}
}

func (s *plannerService) Available() bool {
	return s.weather != nil
}

func (s *plannerService) Cities() []string {
	out := make([]string, len(cities))
	for i, c := range cities {
		out[i] = c.name
	}
	return out
}

func (s *plannerService) Events() []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.name
	}
	return out
}

// Criteria 返回活动的评分标准，活动名不区分大小写。
func (s *plannerService) Criteria(event string) (model.EventCriteria, bool) {
	name := strings.ToLower(strings.TrimSpace(event))
	for _, e := range events {
		if e.name == name {
			return e.criteria, true
		}
	}
	return model.EventCriteria{}, false
}

// Plan 在指定城市和月份中找出评分最高的 Limit 天。评分相同时保留日期靠前的一天。
func (s *plannerService) Plan(ctx context.Context, req PlanRequest) (*model.EventPlan, error) {
	if s.weather == nil {
		return nil, ErrPlannerUnavailable
	}

	// Caser 有内部状态，不能在 goroutine 之间共享
	req.City = cases.Title(language.Und).String(strings.TrimSpace(req.City))
	req.Event = strings.ToLower(strings.TrimSpace(req.Event))
	if err := validatePlanRequest(req); err != nil {
		return nil, err
	}

	loc, ok := findCity(req.City)
	if !ok {
		return nil, fmt.Errorf("%w: %q，可选城市: %s", ErrUnknownCity, req.City, strings.Join(s.Cities(), ", "))
	}
	criteria, ok := s.Criteria(req.Event)
	if !ok {
		return nil, fmt.Errorf("%w: %q，可选活动: %s", ErrUnknownEvent, req.Event, strings.Join(s.Events(), ", "))
	}

	_, span := s.tracer.Start(ctx, "planner.Plan", trace.WithAttributes(
		attribute.String("planner.city", loc.name),
		attribute.String("planner.event", req.Event),
		attribute.Int("planner.month", req.Month),
		attribute.Int("planner.year", req.Year),
	))
	defer span.End()

	type scored struct {
		rec   model.WeatherRecord
		score float64
	}
	var days []scored
	for _, rec := range s.weather.FindByLocation(loc.lat, loc.lon) {
		if int(rec.Date.Month()) == req.Month && rec.Date.Year() == req.Year {
			days = append(days, scored{rec: rec, score: EventScore(rec, criteria)})
		}
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].score > days[j].score })
	if len(days) > req.Limit {
		days = days[:req.Limit]
	}

	plan := &model.EventPlan{
		City:     loc.name,
		Event:    req.Event,
		Month:    req.Month,
		Year:     req.Year,
		BestDays: make([]model.WeatherDay, 0, len(days)),
	}
	for _, d := range days {
		plan.BestDays = append(plan.BestDays, model.WeatherDay{
			Date:                d.rec.Date.Format("2006-01-02"),
			Score:               round(d.score, 2),
			TempCelsius:         round(d.rec.AfternoonTemp-kelvinOffset, 1),
			Precip:              round(d.rec.Precip, 2),
			WindMaxSpeed:        round(d.rec.WindMaxSpeed, 2),
			HumidityAfternoon:   round(d.rec.HumidityAfternoon, 1),
			CloudCoverAfternoon: round(d.rec.CloudCoverAfternoon, 1),
		})
	}
	span.SetAttributes(attribute.Int("planner.days", len(plan.BestDays)))

	if len(plan.BestDays) == 0 {
		plan.Message = "该时间段没有天气数据"
	} else {
		plan.Message = fmt.Sprintf("在 %s 找到 %d 个适合 %s 的日子", loc.name, len(plan.BestDays), req.Event)
	}
	log.Infow("活动规划完成", "city", loc.name, "event", req.Event, "month", req.Month, "year", req.Year, "days", len(plan.BestDays))
	return plan, nil
}

func validatePlanRequest(req PlanRequest) error {
	switch {
	case req.City == "":
		return fmt.Errorf("%w: city 不能为空", ErrInvalidPlanRequest)
	case req.Event == "":
		return fmt.Errorf("%w: event 不能为空", ErrInvalidPlanRequest)
	case req.Month < 1 || req.Month > 12:
		return fmt.Errorf("%w: month 必须在 1-12 之间", ErrInvalidPlanRequest)
	case req.Year < minPlanYear || req.Year > maxPlanYear:
		return fmt.Errorf("%w: year 必须在 %d-%d 之间", ErrInvalidPlanRequest, minPlanYear, maxPlanYear)
	case req.Limit < 1 || req.Limit > maxPlanLimit:
		return fmt.Errorf("%w: limit 必须在 1-%d 之间", ErrInvalidPlanRequest, maxPlanLimit)
	}
	return nil
}

func findCity(name string) (city, bool) {
	for _, c := range cities {
		if strings.EqualFold(c.name, name) {
			return c, true
		}
	}
	return city{}, false
}

// EventScore 按活动标准给一天打分，满分 100：
// 温度 30、降水 25、风速 20、湿度 15、云量 10，超出标准的部分按比例扣分，单项最低 0 分。
func EventScore(rec model.WeatherRecord, c model.EventCriteria) float64 {
	score := 0.0

	tempC := rec.AfternoonTemp - kelvinOffset
	minT, maxT := c.TempRange[0], c.TempRange[1]
	if tempC >= minT && tempC <= maxT {
		score += 30
	} else {
		penalty := math.Min(math.Abs(tempC-minT), math.Abs(tempC-maxT))
		score += math.Max(0, 30-penalty*2)
	}

	score += limitScore(rec.Precip, c.MaxPrecip, 25, 10)
	score += limitScore(rec.WindMaxSpeed, c.MaxWind, 20, 3)
	score += limitScore(rec.HumidityAfternoon, c.MaxHumidity, 15, 0.3)
	score += limitScore(rec.CloudCoverAfternoon, c.MaxClouds, 10, 0.2)

	return round(score, 2)
}

// limitScore 在 value 不超过 limit 时给满分 full，否则每超出一个单位扣 rate 分。
func limitScore(value, limit, full, rate float64) float64 {
	if value <= limit {
		return full
	}
	return math.Max(0, full-(value-limit)*rate)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
