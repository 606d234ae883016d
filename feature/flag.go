package feature

import "github.com/goccy/go-json"

const (
	FlagHoliday   = "holiday"
	FlagLocal     = "local_event"
	FlagPromotion = "promoted"
)

// Flag is a day indicator for a holiday, a local event or an active promotion that shifts demand
// away from the baseline of the day
type Flag struct {
	Name string `json:"name"`
}

func NewFlag(name string) *Flag {
	return &Flag{Name: name}
}

func (f Flag) String() string {
	return "flag_" + f.Name
}

func (f Flag) Get(label string) (string, bool) {
	return get(f, label)
}

func (f Flag) Type() FeatureType {
	return FeatureTypeFlag
}

func (f Flag) Decode() map[string]string {
	return map[string]string{"name": f.Name}
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	var labelStr struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &labelStr); err != nil {
		return err
	}
	f.Name = labelStr.Name
	return nil
}
