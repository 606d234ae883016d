package feature

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

type FourierComp string

const (
	FourierCompSin FourierComp = "sin"
	FourierCompCos FourierComp = "cos"
)

// Annual is one fourier term of the yearly demand cycle, e.g. summer patio traffic
type Annual struct {
	Order int         `json:"order"`
	Comp  FourierComp `json:"fourier_component"`
}

func NewAnnual(order int, comp FourierComp) *Annual {
	return &Annual{Order: order, Comp: comp}
}

func (a Annual) String() string {
	return fmt.Sprintf("annual_%02d_%s", a.Order, a.Comp)
}

func (a Annual) Get(label string) (string, bool) {
	return get(a, label)
}

func (a Annual) Type() FeatureType {
	return FeatureTypeAnnual
}

func (a Annual) Decode() map[string]string {
	return map[string]string{
		"order":             strconv.Itoa(a.Order),
		"fourier_component": string(a.Comp),
	}
}

func (a *Annual) UnmarshalJSON(data []byte) error {
	var labelStr struct {
		Order string      `json:"order"`
		Comp  FourierComp `json:"fourier_component"`
	}
	if err := json.Unmarshal(data, &labelStr); err != nil {
		return err
	}
	order, err := strconv.Atoi(labelStr.Order)
	if err != nil {
		return err
	}
	a.Order = order
	a.Comp = labelStr.Comp
	return nil
}
