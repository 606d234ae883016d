package timedataset

import "time"

// Days is an ascending slice of whole UTC days
type Days []time.Time

func (d Days) First() time.Time {
	var first time.Time
	if len(d) < 1 {
		return first
	}
	return d[0]
}

func (d Days) Last() time.Time {
	var last time.Time
	if len(d) < 1 {
		return last
	}
	return d[len(d)-1]
}

// Horizon returns the n days following the last day
func (d Days) Horizon(n int) []time.Time {
	if len(d) == 0 || n <= 0 {
		return nil
	}
	return DaysFrom(d.Last().AddDate(0, 0, 1), n)
}

// Missing returns the calendar days between the first and last day that are absent
func (d Days) Missing() []time.Time {
	var res []time.Time
	for i := 1; i < len(d); i++ {
		for day := d[i-1].AddDate(0, 0, 1); day.Before(d[i]); day = day.AddDate(0, 0, 1) {
			res = append(res, day)
		}
	}
	return res
}

// DaysFrom returns n consecutive days starting at start
func DaysFrom(start time.Time, n int) []time.Time {
	res := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		res = append(res, start.AddDate(0, 0, i))
	}
	return res
}
