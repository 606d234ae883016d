package feature

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Set tracks feature data keyed by the string representation of each feature. Every feature in
// the set has the same number of observations m; shorter data is zero padded.
type Set struct {
	m      int
	set    map[string][]float64
	labels []Feature
}

// NewSet returns an empty feature set
func NewSet() *Set {
	return &Set{
		set:    make(map[string][]float64),
		labels: []Feature{},
	}
}

// Set stores the feature data, overriding any previous data for the same feature
func (s *Set) Set(f Feature, data []float64) *Set {
	if s == nil {
		s = NewSet()
	}
	if len(data) > s.m {
		for label, d := range s.set {
			s.set[label] = append(d, make([]float64, len(data)-len(d))...)
		}
		s.m = len(data)
	}

	d := make([]float64, s.m)
	copy(d, data)

	label := f.String()
	if _, exists := s.set[label]; !exists {
		s.labels = append(s.labels, f)
		sort.Slice(s.labels, func(i, j int) bool {
			return s.labels[i].String() < s.labels[j].String()
		})
	}
	s.set[label] = d
	return s
}

// Get returns the data of the feature if present
func (s *Set) Get(f Feature) ([]float64, bool) {
	if s == nil {
		return nil, false
	}
	d, exists := s.set[f.String()]
	return d, exists
}

// Del removes the feature from the set
func (s *Set) Del(f Feature) *Set {
	if s == nil {
		return nil
	}
	label := f.String()
	if _, exists := s.set[label]; !exists {
		return s
	}
	delete(s.set, label)
	for i, l := range s.labels {
		if l.String() == label {
			s.labels = append(s.labels[:i], s.labels[i+1:]...)
			break
		}
	}
	if len(s.set) == 0 {
		s.m = 0
	}
	return s
}

// Update copies every feature of next into the set
func (s *Set) Update(next *Set) *Set {
	if next == nil {
		return s
	}
	for _, f := range next.labels {
		s = s.Set(f, next.set[f.String()])
	}
	return s
}

// Len returns the number of features
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.labels)
}

// Rows returns the number of observations per feature
func (s *Set) Rows() int {
	if s == nil {
		return 0
	}
	return s.m
}

// Labels returns the sorted labels of all tracked features in the Set
func (s *Set) Labels() *Labels {
	if s == nil {
		return NewLabels(nil)
	}
	labels := make([]Feature, len(s.labels))
	copy(labels, s.labels)
	return NewLabels(labels)
}

// Filter returns a new set of only the features of the requested types
func (s *Set) Filter(types ...FeatureType) *Set {
	res := NewSet()
	if s == nil {
		return res
	}
	for _, f := range s.labels {
		for _, ft := range types {
			if f.Type() == ft {
				res.Set(f, s.set[f.String()])
				break
			}
		}
	}
	return res
}

// Matrix returns a matrix representation of the Set to be used with matrix methods. The matrix
// has m rows representing the number of observations and n columns representing the number of
// features in label order, optionally preceded by a constant intercept column.
func (s *Set) Matrix(intercept bool) *mat.Dense {
	if s == nil || s.m == 0 {
		return nil
	}
	n := len(s.labels)
	if intercept {
		n++
	}
	if n == 0 {
		return nil
	}

	obs := make([]float64, s.m*n)
	featNum := 0
	if intercept {
		for i := 0; i < s.m; i++ {
			obs[n*i] = 1.0
		}
		featNum++
	}

	for _, label := range s.labels {
		feature := s.set[label.String()]
		for i := 0; i < s.m; i++ {
			obs[n*i+featNum] = feature[i]
		}
		featNum++
	}
	return mat.NewDense(s.m, n, obs)
}

// RemoveConstantFeatures drops every feature whose observations are all the same value. Such
// columns carry no information once the design matrix is centered.
func (s *Set) RemoveConstantFeatures() *Set {
	if s == nil {
		return nil
	}
	for _, f := range s.Labels().Labels() {
		d := s.set[f.String()]
		constant := true
		for _, v := range d {
			if v != d[0] {
				constant = false
				break
			}
		}
		if constant {
			s.Del(f)
		}
	}
	return s
}
