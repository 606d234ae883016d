package util

import "math"

func IndentExpand(indent string, growth int) string {
	indentByte := []byte(indent)
	out := make([]byte, 0, len(indent)*growth)
	for i := 0; i < growth; i++ {
		out = append(out, indentByte...)
	}
	return string(out)
}

// Multiplier converts a log scale effect into its multiplicative effect on the mean
func Multiplier(logEffect float64) float64 {
	return math.Exp(logEffect)
}
