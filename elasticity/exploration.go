package elasticity

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/aouyang1/go-demandcast/venue"
)

// Assignment is the exploration draw of one item day
type Assignment struct {
	Explore  bool
	Discount float64
}

// Exploration decides which promotion slots are exploration promotions. Draws are seeded by
// tenant, item and day so repeated runs make the same choice and the choice never depends on
// demand or inventory.
type Exploration struct {
	rate float64
	tier []float64
}

// NewExploration returns the exploration policy of the options
func NewExploration(opt *Options) (*Exploration, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	tier := make([]float64, len(opt.ExplorationTier))
	copy(tier, opt.ExplorationTier)
	return &Exploration{rate: opt.ExplorationRate, tier: tier}, nil
}

func (x *Exploration) rng(tenant venue.TenantID, item venue.ItemID, day time.Time) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(tenant))
	h.Write([]byte{0})
	h.Write([]byte(item))
	h.Write([]byte{0})
	h.Write([]byte(venue.Day(day).Format(time.DateOnly)))
	return rand.New(rand.NewPCG(h.Sum64(), 0x2545f4914f6cdd1d))
}

// Draw returns whether the item day is an exploration slot and the tier discount to use
func (x *Exploration) Draw(tenant venue.TenantID, item venue.ItemID, day time.Time) Assignment {
	rng := x.rng(tenant, item, day)
	if rng.Float64() >= x.rate {
		return Assignment{}
	}
	return Assignment{Explore: true, Discount: x.tier[rng.IntN(len(x.tier))]}
}

// TierDiscount returns the deterministic exploration tier discount of the item day regardless of
// whether it is an exploration slot. Used to cap items with no confident elasticity.
func (x *Exploration) TierDiscount(tenant venue.TenantID, item venue.ItemID, day time.Time) float64 {
	rng := x.rng(tenant, item, day)
	rng.Float64()
	return x.tier[rng.IntN(len(x.tier))]
}

// Tier returns a copy of the exploration discounts
func (x *Exploration) Tier() []float64 {
	tier := make([]float64, len(x.tier))
	copy(tier, x.tier)
	return tier
}

// MaxTierDiscount is the deepest exploration discount
func (x *Exploration) MaxTierDiscount() float64 {
	m := 0.0
	for _, d := range x.tier {
		if d > m {
			m = d
		}
	}
	return m
}

// Rate returns the fraction of promotion slots reserved for exploration
func (x *Exploration) Rate() float64 {
	return x.rate
}
