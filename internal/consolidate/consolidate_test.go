package consolidate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/bikecrawler/internal/export"
	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/normalize"
	"sjsage522/bikecrawler/internal/store"
	apperrors "sjsage522/bikecrawler/pkg/errors"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func z650() model.Bike {
	return model.Bike{
		Year:      2023,
		Make:      "kawasaki",
		Model:     "z650",
		Category:  "naked",
		Engine:    "649 cc parallel twin",
		Price:     "$8,399",
		URL:       "https://bikez.com/motorcycles/kawasaki_z650_2023.php",
		ImageURL:  "https://bikez.com/pictures/kawasaki/2023/z650.jpg",
		Provider:  "Bikez",
		ScrapedAt: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
		Specs: map[string]string{
			"Max Power":   "67 hp @ 8,000 rpm",
			"Max Torque":  "64 Nm @ 6,700 rpm",
			"Curb weight": "187 kg",
			"Seat height": "790 mm",
		},
	}
}

func TestNormalizeAndValidate(t *testing.T) {
	makes := normalize.NewMakeResolver("Kawasaki", "Harley-Davidson")

	b := Normalize(model.Bike{Make: "harley davidson", Model: "street glide  special", Package: "cvo"}, makes)
	assert.Equal(t, "Harley-Davidson", b.Make)
	assert.Equal(t, "Street Glide Special", b.Model)
	assert.Equal(t, "Cvo", b.Package)
	assert.NoError(t, Validate(b))

	testCases := []struct {
		name string
		bike model.Bike
	}{
		{"missing make", model.Bike{Model: "Z650"}},
		{"missing model", model.Bike{Make: "Kawasaki"}},
		{"year too old", model.Bike{Make: "Kawasaki", Model: "Z650", Year: 1800}},
		{"year too new", model.Bike{Make: "Kawasaki", Model: "Z650", Year: 2101}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.bike)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}

	assert.NoError(t, Validate(model.Bike{Make: "Kawasaki", Model: "Z650"}), "an unknown year is allowed")
}

func TestDedupeIsIdempotent(t *testing.T) {
	bikes := []model.Bike{
		{Make: "Trek", Model: "Marlin 7", Year: 2023, Price: "$899"},
		{Make: "Giant", Model: "Talon 1", Year: 2023},
		{Make: "trek", Model: "marlin-7", Year: 2023, ImageURL: "https://99spokes.com/marlin.jpg"},
		{Make: "Trek", Model: "Marlin 7", Year: 2022},
	}

	once, duplicates, err := Dedupe(bikes)
	require.NoError(t, err)
	assert.Equal(t, 1, duplicates)
	require.Len(t, once, 3)
	assert.Equal(t, model.Bike{Make: "Trek", Model: "Marlin 7", Year: 2023, Price: "$899", ImageURL: "https://99spokes.com/marlin.jpg"}, once[0])
	assert.Equal(t, "Giant", once[1].Make)

	twice, duplicates, err := Dedupe(once)
	require.NoError(t, err)
	assert.Zero(t, duplicates)
	assert.Equal(t, once, twice)
}

func TestConsolidateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	c := New(s, normalize.NewMakeResolver("Kawasaki"))

	stats, err := c.Consolidate(ctx, []model.Bike{z650(), z650()}, "dump.csv")
	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 2, Duplicates: 1, Created: 1, Images: 1}, stats)

	stats, err = c.Consolidate(ctx, []model.Bike{z650()}, "dump.csv")
	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 1, Updated: 1}, stats)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Manufacturers: 1, Models: 1, Variants: 1, Engines: 1, Physicals: 1, Images: 1}, counts)

	low, err := s.LowQuality(ctx, 101, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Kawasaki", low[0].Manufacturer)
	assert.Equal(t, "Z650", low[0].Model)
	assert.Equal(t, 100, low[0].QualityScore)
}

func TestConsolidateSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	c := New(s, nil)

	bikes := []model.Bike{
		{Make: "Honda", Model: "CB500F", Year: 2023, Specs: map[string]string{"Displacement": "471 cc"}},
		{Make: "", Model: "Orphan"},
		{Make: "Honda", Model: "CB500F", Year: 1700},
	}
	stats, err := c.Consolidate(ctx, bikes, "honda.json")
	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 3, Invalid: 2, Created: 1}, stats)

	missing, err := s.MissingSpecs(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Missing{Engine: 0, Physical: 1}, missing)
}

func TestConsolidateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(openStore(t), nil)
	_, err := c.Consolidate(ctx, []model.Bike{z650()}, "dump.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, export.WriteFile(filepath.Join(dir, "bikes_2023_kawasaki.csv"), []model.Bike{z650()}))
	require.NoError(t, export.WriteFile(filepath.Join(dir, "specs", "honda.jsonl"), []model.Bike{
		{Make: "Honda", Model: "CB500F", Year: 2023},
		{Make: "Kawasaki", Model: "Z650", Year: 2023, Specs: map[string]string{"Wheelbase": "1410 mm"}},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("[{"), 0644))

	s := openStore(t)
	stats, err := New(s, nil).IngestFiles(ctx, dir)
	assert.ErrorContains(t, err, "broken.json")
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 3, stats.Read)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Updated)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Variants)
	assert.Equal(t, 2, counts.Manufacturers)
}

func TestConsolidateMatchesAcrossBatches(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	c := New(s, nil)

	stats, err := c.Consolidate(ctx, []model.Bike{
		{Make: "Specialized", Model: "StumpJumper EVO", Year: 2024, Package: "S-Works"},
	}, "specialized_1.json")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	stats, err = c.Consolidate(ctx, []model.Bike{
		{Make: "Specialized", Model: "Stumpjumper Evo", Year: 2024, Package: "S Works", Price: "$13,500"},
	}, "specialized_2.json")
	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 1, Updated: 1}, stats)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Models)
	assert.Equal(t, 1, counts.Variants)
}

func TestRefreshUpdatesVariantByID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	c := New(s, nil)

	_, err := c.Consolidate(ctx, []model.Bike{{
		Make:    "Trek",
		Model:   "Fuel EX 8",
		Year:    2024,
		Package: "Gen 6",
		URL:     "https://www.99spokes.com/en-US/bikes/trek/2024/fuel-ex-8",
	}}, "trek.json")
	require.NoError(t, err)

	states, err := s.CrawlStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)

	// the detail page names the bike without its package
	crawled := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stats, err := c.Refresh(ctx, states[0].VariantID, model.Bike{
		Make:      "Trek",
		Model:     "Fuel EX 8",
		Year:      2024,
		URL:       "https://www.99spokes.com/en-US/bikes/trek/2024/fuel-ex-8",
		ImageURL:  "https://www.99spokes.com/images/fuel-ex-8.jpg",
		Provider:  "99 Spokes",
		ScrapedAt: crawled,
		Specs:     map[string]string{"Seat height": "760 mm"},
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 1, Updated: 1, Images: 1}, stats)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Manufacturers: 1, Models: 1, Variants: 1, Physicals: 1, Images: 1}, counts)

	states, err = s.CrawlStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.True(t, crawled.Equal(states[0].LastCrawled))

	// a page without make or model still refreshes its variant
	_, err = c.Refresh(ctx, states[0].VariantID, model.Bike{ScrapedAt: crawled.Add(time.Hour)})
	require.NoError(t, err)

	_, err = c.Refresh(ctx, states[0].VariantID+100, model.Bike{ScrapedAt: crawled})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
}
