package feature

import (
	"errors"
	"math"
	"time"
)

var ErrNegativeAnnualOrder = errors.New("negative annual fourier order")

const (
	// reference temperature in celcius with no weather effect
	baseTemperature = 18.0
	daysPerYear     = 365.25
)

// Day holds the calendar and weather context of a single demand day
type Day struct {
	T               time.Time
	TemperatureC    float64
	PrecipitationMM float64
	Holiday         bool
	LocalEvent      bool
	Promoted        bool
}

// Options selects which features are generated for the daily demand model
type Options struct {
	DayOfWeek    bool `json:"day_of_week"`
	AnnualOrders int  `json:"annual_orders"`
	Weather      bool `json:"weather"`
	Events       bool `json:"events"`
	Promotion    bool `json:"promotion"`
}

// NewDefaultOptions models day of week, two annual fourier orders, weather, events and promotions
func NewDefaultOptions() *Options {
	return &Options{
		DayOfWeek:    true,
		AnnualOrders: 2,
		Weather:      true,
		Events:       true,
		Promotion:    true,
	}
}

// Validate runs basic validation on feature options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.AnnualOrders < 0 {
		return nil, ErrNegativeAnnualOrder
	}
	return o, nil
}

// Generate builds the feature set for the days. Sunday is the day of week baseline and has no
// indicator column.
func Generate(days []Day, opt *Options) (*Set, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	n := len(days)
	s := NewSet()
	if n == 0 {
		return s, nil
	}

	if opt.DayOfWeek {
		for wd := time.Monday; wd <= time.Saturday; wd++ {
			data := make([]float64, n)
			for i, d := range days {
				if d.T.Weekday() == wd {
					data[i] = 1.0
				}
			}
			s.Set(DayOfWeek(wd), data)
		}
	}

	for order := 1; order <= opt.AnnualOrders; order++ {
		sin := make([]float64, n)
		cos := make([]float64, n)
		omega := 2.0 * math.Pi * float64(order) / daysPerYear
		for i, d := range days {
			rad := omega * float64(d.T.YearDay()-1)
			sin[i] = math.Sin(rad)
			cos[i] = math.Cos(rad)
		}
		s.Set(NewAnnual(order, FourierCompSin), sin)
		s.Set(NewAnnual(order, FourierCompCos), cos)
	}

	if opt.Weather {
		temp := make([]float64, n)
		precip := make([]float64, n)
		for i, d := range days {
			temp[i] = (d.TemperatureC - baseTemperature) / 10.0
			precip[i] = math.Log1p(math.Max(d.PrecipitationMM, 0))
		}
		s.Set(NewWeather(WeatherTemperature), temp)
		s.Set(NewWeather(WeatherPrecipitation), precip)
	}

	if opt.Events {
		s.Set(NewFlag(FlagHoliday), indicator(days, func(d Day) bool { return d.Holiday }))
		s.Set(NewFlag(FlagLocal), indicator(days, func(d Day) bool { return d.LocalEvent }))
	}
	if opt.Promotion {
		s.Set(NewFlag(FlagPromotion), indicator(days, func(d Day) bool { return d.Promoted }))
	}
	return s, nil
}

func indicator(days []Day, fn func(Day) bool) []float64 {
	data := make([]float64, len(days))
	for i, d := range days {
		if fn(d) {
			data[i] = 1.0
		}
	}
	return data
}
