package feature

// Labels is the ordered list of model columns. Position i is the column of coefficient i.
type Labels struct {
	feats []Feature
	pos   map[string]int
}

func NewLabels(feats []Feature) *Labels {
	l := &Labels{
		feats: feats,
		pos:   make(map[string]int, len(feats)),
	}
	for i, f := range feats {
		l.pos[f.String()] = i
	}
	return l
}

func (l *Labels) Len() int {
	return len(l.feats)
}

// Labels returns a copy of the columns in order
func (l *Labels) Labels() []Feature {
	return append([]Feature(nil), l.feats...)
}

// Names returns the column labels in order
func (l *Labels) Names() []string {
	names := make([]string, len(l.feats))
	for i, f := range l.feats {
		names[i] = f.String()
	}
	return names
}

// Index returns the column of the feature, -1 when absent
func (l *Labels) Index(f Feature) (int, bool) {
	i, exists := l.pos[f.String()]
	if !exists {
		return -1, false
	}
	return i, true
}
