package nws

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/pkg/units"
)

type stubGrids struct {
	grid *Grid
}

func (s *stubGrids) Get(units.City) (*Grid, error) { return s.grid, nil }
func (s *stubGrids) Save(Grid) error               { return nil }

// Overlapping forecast sweeps share one client, so the grid cache must
// tolerate concurrent lookups and invalidations.
func TestGridCache_ConcurrentAccess(t *testing.T) {
	stored := &Grid{City: units.CityNYC, GridID: "OKX", GridX: 33, GridY: 37}
	client := NewClient(Config{
		Grids: &stubGrids{grid: stored},
		Log:   zerolog.Nop(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g, err := client.grid(context.Background(), units.CityNYC)
				if err != nil {
					t.Errorf("grid lookup failed: %v", err)
					return
				}
				if g.GridID != "OKX" {
					t.Errorf("Unexpected grid %q", g.GridID)
					return
				}
				if n == 0 && j%10 == 0 {
					client.InvalidateGrid(units.CityNYC)
				}
			}
		}(i)
	}
	wg.Wait()

	g, err := client.grid(context.Background(), units.CityNYC)
	if err != nil {
		t.Fatalf("grid lookup failed: %v", err)
	}
	if g.GridX != 33 || g.GridY != 37 {
		t.Errorf("Cache corrupted: %+v", g)
	}
}
