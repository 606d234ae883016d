package feature

import "github.com/goccy/go-json"

const (
	WeatherTemperature   = "temperature"
	WeatherPrecipitation = "precipitation"
)

// Weather is a continuous weather covariate. Values are scaled so that a coefficient of 0.1 is
// a 10% demand change per unit: temperature per 10C away from 18C and precipitation per log mm.
type Weather struct {
	Name string `json:"name"`
}

func NewWeather(name string) *Weather {
	return &Weather{Name: name}
}

func (w Weather) String() string {
	return "weather_" + w.Name
}

func (w Weather) Get(label string) (string, bool) {
	return get(w, label)
}

func (w Weather) Type() FeatureType {
	return FeatureTypeWeather
}

func (w Weather) Decode() map[string]string {
	return map[string]string{"name": w.Name}
}

func (w *Weather) UnmarshalJSON(data []byte) error {
	var labelStr struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &labelStr); err != nil {
		return err
	}
	w.Name = labelStr.Name
	return nil
}
