package demandcast

import (
	"context"
	"testing"

	"github.com/pkg/profile"
)

var benchRunRes *Result

func BenchmarkRun(b *testing.B) {
	snap := testSnapshot(b, "venue-a")
	e, err := New(nil)
	if err != nil {
		panic(err)
	}

	b.ResetTimer()
	defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	for b.Loop() {
		benchRunRes, err = e.Run(context.Background(), snap)
		if err != nil {
			panic(err)
		}
	}
}
