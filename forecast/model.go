package forecast

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/aouyang1/go-demandcast/forecast/util"
	"github.com/goccy/go-json"
)

// Model represents a serializeable format of a forecast storing the forecast options, fit scores,
// and the blended parameters
type Model struct {
	Version      string    `json:"model_version"`
	TrainEndTime time.Time `json:"train_end_time"`
	Options      *Options  `json:"options"`
	Scores       *Scores   `json:"scores,omitempty"`

	Level       float64 `json:"level"`
	LogVar      float64 `json:"log_var"`
	Dispersion  float64 `json:"dispersion"`
	DaysOfData  int     `json:"days_of_data"`
	PriorWeight float64 `json:"prior_weight"`
	PriorOnly   bool    `json:"prior_only"`
	Weights     Weights `json:"weights"`
}

// Model returns the serializeable model of a trained forecast
func (f *Forecast) Model() (Model, error) {
	if f == nil {
		return Model{}, ErrUninitializedForecast
	}
	if !f.trained {
		return Model{}, ErrUntrainedForecast
	}
	return Model{
		Version:      ModelVersion,
		TrainEndTime: f.trainEndTime,
		Options:      f.opt,
		Scores:       f.scores,
		Level:        f.level,
		LogVar:       f.logVar,
		Dispersion:   f.dispersion,
		DaysOfData:   f.daysOfData,
		PriorWeight:  f.priorWeight,
		PriorOnly:    f.priorOnly,
		Weights:      NewWeights(f.effects),
	}, nil
}

// NewFromModel restores a trained forecast from a serialized model
func NewFromModel(m Model) (*Forecast, error) {
	f, err := New(m.Options)
	if err != nil {
		return nil, err
	}
	f.trainEndTime = m.TrainEndTime
	f.scores = m.Scores
	f.level = m.Level
	f.logVar = m.LogVar
	f.dispersion = m.Dispersion
	f.daysOfData = m.DaysOfData
	f.priorWeight = m.PriorWeight
	f.priorOnly = m.PriorOnly
	f.effects = m.Weights.Effects()
	f.trained = true
	return f, nil
}

// MarshalJSON encodes the trained forecast as its model
func (f *Forecast) MarshalJSON() ([]byte, error) {
	m, err := f.Model()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// UnmarshalJSON restores a forecast from an encoded model
func (f *Forecast) UnmarshalJSON(data []byte) error {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	restored, err := NewFromModel(m)
	if err != nil {
		return err
	}
	*f = *restored
	return nil
}

func (m Model) TablePrint(w io.Writer, prefix, indent string) error {
	if _, err := fmt.Fprintf(w, "%s%sForecast:\n", prefix, util.IndentExpand(indent, 0)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%sModel Version: %s\n", prefix, util.IndentExpand(indent, 1), m.Version); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%sTraining End Time: %s\n", prefix, util.IndentExpand(indent, 1), m.TrainEndTime); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%sDays Of Data: %d    Prior Weight: %.3f    Prior Only: %t\n",
		prefix, util.IndentExpand(indent, 1),
		m.DaysOfData, m.PriorWeight, m.PriorOnly,
	); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%sLevel: %.3f    Log Variance: %.4f    Dispersion: %.4f\n",
		prefix, util.IndentExpand(indent, 1),
		m.Level, m.LogVar, m.Dispersion,
	); err != nil {
		return err
	}
	if m.Options != nil {
		if _, err := fmt.Fprintf(w, "%s%sRegularization: %.3f\n", prefix, util.IndentExpand(indent, 1), m.Options.Regularization); err != nil {
			return err
		}
	}

	if m.Scores != nil {
		if _, err := fmt.Fprintf(w, "%s%sScores:\n", prefix, util.IndentExpand(indent, 0)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s%sMAPE: %.3f    MSE: %.3f    R2: %.3f\n",
			prefix, util.IndentExpand(indent, 1),
			m.Scores.MAPE,
			m.Scores.MSE,
			m.Scores.R2,
		); err != nil {
			return err
		}
	}

	return m.Weights.tablePrint(w, prefix, indent, 0)
}

// Weights stores the relative effects of the forecast model sorted by label
type Weights struct {
	Coef []FeatureWeight `json:"coefficients"`
}

// NewWeights converts effects keyed by label into sorted weights
func NewWeights(effects map[string]float64) Weights {
	coef := make([]FeatureWeight, 0, len(effects))
	for label, v := range effects {
		coef = append(coef, FeatureWeight{Label: label, Value: v})
	}
	sort.Slice(coef, func(i, j int) bool {
		return coef[i].Label < coef[j].Label
	})
	return Weights{Coef: coef}
}

// Effects returns the weights keyed by feature label
func (w Weights) Effects() map[string]float64 {
	res := make(map[string]float64, len(w.Coef))
	for _, fw := range w.Coef {
		res[fw.Label] = fw.Value
	}
	return res
}

func (w Weights) tablePrint(wr io.Writer, prefix, indent string, indentGrowth int) error {
	if _, err := fmt.Fprintf(wr, "%s%sWeights:\n", prefix, util.IndentExpand(indent, indentGrowth)); err != nil {
		return err
	}
	tbl := tabwriter.NewWriter(wr, 0, 0, 1, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintf(tbl, "%s%sLabel\tValue\tMultiplier\t\n", prefix, util.IndentExpand(indent, indentGrowth+1)); err != nil {
		return err
	}
	for _, fw := range w.Coef {
		val := fmt.Sprintf("%.3f", fw.Value)
		mult := fmt.Sprintf("x%.3f", util.Multiplier(fw.Value))
		if fw.Value == 0 {
			val = "..."
			mult = "..."
		}
		if _, err := fmt.Fprintf(tbl, "%s%s%s\t%s\t%s\t\n",
			prefix, util.IndentExpand(indent, indentGrowth+1),
			fw.Label, val, mult); err != nil {
			return err
		}
	}
	return tbl.Flush()
}

// FeatureWeight is a single relative effect on the log mean
type FeatureWeight struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}
