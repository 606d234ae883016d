// Package feature holds the labelled explanatory variables of the daily demand model and the set
// used to turn them into a design matrix
package feature

import "strings"

type FeatureType int

const (
	FeatureTypeWeekday FeatureType = iota
	FeatureTypeAnnual
	FeatureTypeWeather
	FeatureTypeFlag
)

func (f FeatureType) String() string {
	switch f {
	case FeatureTypeWeekday:
		return "weekday"
	case FeatureTypeAnnual:
		return "annual"
	case FeatureTypeWeather:
		return "weather"
	case FeatureTypeFlag:
		return "flag"
	}
	return "unknown"
}

// Feature is a model column. String is the column label, also used as the key of fitted effects
// in priors, and Decode returns the label values it was built from.
type Feature interface {
	String() string
	Get(string) (string, bool)
	Type() FeatureType
	Decode() map[string]string
}

// get looks up a label value case insensitively
func get(f Feature, label string) (string, bool) {
	v, exists := f.Decode()[strings.ToLower(label)]
	return v, exists
}
