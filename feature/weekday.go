package feature

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var ErrUnknownWeekday = errors.New("unknown weekday")

// Weekday is the indicator column of one day of the week
type Weekday struct {
	Day time.Weekday
}

// DayOfWeek returns the indicator feature for the weekday
func DayOfWeek(wd time.Weekday) *Weekday {
	return &Weekday{Day: wd}
}

func weekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String()[:3])
}

func (w Weekday) String() string {
	return "dow_" + weekdayName(w.Day)
}

func (w Weekday) Get(label string) (string, bool) {
	return get(w, label)
}

func (w Weekday) Type() FeatureType {
	return FeatureTypeWeekday
}

func (w Weekday) Decode() map[string]string {
	return map[string]string{"weekday": weekdayName(w.Day)}
}

// UnmarshalJSON reads the decoded form, the short lower case weekday name
func (w *Weekday) UnmarshalJSON(data []byte) error {
	var labelStr struct {
		Weekday string `json:"weekday"`
	}
	if err := json.Unmarshal(data, &labelStr); err != nil {
		return err
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if weekdayName(wd) == labelStr.Weekday {
			w.Day = wd
			return nil
		}
	}
	return fmt.Errorf("%q, %w", labelStr.Weekday, ErrUnknownWeekday)
}
