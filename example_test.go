package demandcast_test

import (
	"context"
	"fmt"
	"time"

	"github.com/aouyang1/go-demandcast"
	"github.com/aouyang1/go-demandcast/featurestore"
	"github.com/aouyang1/go-demandcast/profit"
	"github.com/shopspring/decimal"
)

func ExampleEngine_Run() {
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	// a new menu item without any sales is forecast from the default prior
	snap := &featurestore.Snapshot{
		Tenant: "venue-a",
		Horizon: []featurestore.DayContext{
			{Date: day},
			{Date: day.AddDate(0, 0, 1), Weather: featurestore.Weather{TemperatureC: 24}},
		},
		Catalog: profit.Catalog{
			Items: []profit.MenuItem{{ID: "soup", Category: "signature", Price: decimal.NewFromInt(7)}},
		},
	}

	e, err := demandcast.New(nil)
	if err != nil {
		panic(err)
	}
	res, err := e.Run(context.Background(), snap)
	if err != nil {
		panic(err)
	}

	fmt.Println(res.Period.Key())
	for _, f := range res.Items {
		fmt.Printf("%s prior_only=%t prior_weight=%.1f days=%d\n", f.Item, f.PriorOnly, f.PriorWeight, len(f.Forecasts))
	}
	// Output:
	// 2024-06-03/2024-06-05
	// soup prior_only=true prior_weight=1.0 days=2
}
