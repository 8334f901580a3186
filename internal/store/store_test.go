package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	apperrors "sjsage522/bikecrawler/pkg/errors"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "root@/bikes")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}

func TestRebind(t *testing.T) {
	sqlite := &Queries{driver: DriverSQLite}
	postgres := &Queries{driver: DriverPostgres}

	query := "SELECT id FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, query, sqlite.rebind(query))
	assert.Equal(t, "SELECT id FROM t WHERE a = $1 AND b = $2", postgres.rebind(query))
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := t.TempDir() + "/nested/bikes.db"
	s, err := Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// the schema is applied idempotently
	s, err = Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestUpsertChain(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	makeID, created, err := s.UpsertManufacturer(ctx, "Kawasaki")
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := s.UpsertManufacturer(ctx, "kawasaki")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, makeID, again)

	modelID, created, err := s.UpsertModel(ctx, makeID, "Z650", "")
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = s.UpsertModel(ctx, makeID, "Z650", "Naked")
	require.NoError(t, err)
	assert.False(t, created)

	var category string
	require.NoError(t, s.db.QueryRow("SELECT category FROM motorcycle_models WHERE id = ?", modelID).Scan(&category))
	assert.Equal(t, "Naked", category)

	crawled := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	variantID, created, err := s.UpsertVariant(ctx, Variant{
		ModelID:      modelID,
		Year:         2023,
		Price:        7999,
		Currency:     "USD",
		Source:       "bikez",
		SourceURL:    "https://bikez.com/motorcycles/kawasaki_z650_2023.php",
		QualityScore: 80,
		CrawledAt:    crawled,
	})
	require.NoError(t, err)
	assert.True(t, created)

	// an emptier, older record keeps what is already known
	same, created, err := s.UpsertVariant(ctx, Variant{
		ModelID:      modelID,
		Year:         2023,
		QualityScore: 40,
		CrawledAt:    crawled.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, variantID, same)

	var (
		price   sql.NullFloat64
		quality int
		source  string
	)
	require.NoError(t, s.db.QueryRow(
		"SELECT price, quality_score, source_url FROM motorcycle_variants WHERE id = ?", variantID,
	).Scan(&price, &quality, &source))
	assert.Equal(t, 7999.0, price.Float64)
	assert.Equal(t, 80, quality)
	assert.Equal(t, "https://bikez.com/motorcycles/kawasaki_z650_2023.php", source)

	created, err = s.UpsertEngine(ctx, variantID, EngineSpec{EngineType: "Parallel twin", DisplacementCC: 649, PowerHP: 67, PowerRPM: 8000})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.UpsertEngine(ctx, variantID, EngineSpec{TorqueNM: 64, TorqueRPM: 6700})
	require.NoError(t, err)
	assert.False(t, created)

	var (
		engineType   string
		displacement sql.NullFloat64
		torque       sql.NullFloat64
	)
	require.NoError(t, s.db.QueryRow(
		"SELECT engine_type, displacement_cc, torque_nm FROM engine_specs WHERE variant_id = ?", variantID,
	).Scan(&engineType, &displacement, &torque))
	assert.Equal(t, "Parallel twin", engineType)
	assert.Equal(t, 649.0, displacement.Float64)
	assert.Equal(t, 64.0, torque.Float64)

	created, err = s.UpsertPhysical(ctx, variantID, PhysicalSpec{WetWeightKG: 187})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.UpsertPhysical(ctx, variantID, PhysicalSpec{SeatHeightMM: 790})
	require.NoError(t, err)
	assert.False(t, created)

	added, err := s.AddImage(ctx, variantID, "https://bikez.com/pictures/kawasaki/2023/z650.jpg")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddImage(ctx, variantID, "https://bikez.com/pictures/kawasaki/2023/z650.jpg")
	require.NoError(t, err)
	assert.False(t, added)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Manufacturers: 1, Models: 1, Variants: 1, Engines: 1, Physicals: 1, Images: 1}, counts)
}

func TestUpsertMatchesSpellings(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	makeID, _, err := s.UpsertManufacturer(ctx, "Specialized")
	require.NoError(t, err)

	modelID, created, err := s.UpsertModel(ctx, makeID, "StumpJumper EVO", "")
	require.NoError(t, err)
	assert.True(t, created)
	same, created, err := s.UpsertModel(ctx, makeID, "Stumpjumper Evo", "Trail")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, modelID, same)

	variantID, created, err := s.UpsertVariant(ctx, Variant{ModelID: modelID, Year: 2024, Package: "S-Works"})
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := s.UpsertVariant(ctx, Variant{ModelID: modelID, Year: 2024, Package: "S Works", Price: 13500})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, variantID, again)

	var name, pkg string
	require.NoError(t, s.db.QueryRow(
		`SELECT mo.name, v.package FROM motorcycle_variants v
		JOIN motorcycle_models mo ON mo.id = v.model_id WHERE v.id = ?`, variantID,
	).Scan(&name, &pkg))
	assert.Equal(t, "StumpJumper EVO", name)
	assert.Equal(t, "S-Works", pkg)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Models)
	assert.Equal(t, 1, counts.Variants)
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, DriverSQLite, t.TempDir()+"/bikes.db")
	require.NoError(t, err)
	defer s.Close()

	// every statement gets a fresh connection
	s.db.SetMaxIdleConns(0)

	for range 3 {
		var enabled int
		require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled)
	}

	_, _, err = s.UpsertModel(ctx, 4242, "Orphan", "")
	require.Error(t, err)

	makeID, _, err := s.UpsertManufacturer(ctx, "Bimota")
	require.NoError(t, err)
	_, _, err = s.UpsertModel(ctx, makeID, "Tesi H2", "Sport")
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, "DELETE FROM manufacturers WHERE id = ?", makeID)
	require.NoError(t, err)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Models)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_pragma=foreign_keys(1)", sqliteDSN(":memory:"))
	assert.Equal(t, "data/bikes.db?_pragma=foreign_keys(1)", sqliteDSN("data/bikes.db"))
	assert.Equal(t, "file:bikes.db?mode=ro&_pragma=foreign_keys(1)", sqliteDSN("file:bikes.db?mode=ro"))
	assert.Equal(t, "bikes.db?_pragma=foreign_keys(0)", sqliteDSN("bikes.db?_pragma=foreign_keys(0)"))
}

// upsertConcurrently writes the same record from several goroutines at once
func upsertConcurrently(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			return s.InTx(ctx, func(q *Queries) error {
				makeID, _, err := q.UpsertManufacturer(ctx, "Yamaha")
				if err != nil {
					return err
				}
				modelID, _, err := q.UpsertModel(ctx, makeID, "MT-07", "Naked")
				if err != nil {
					return err
				}
				variantID, _, err := q.UpsertVariant(ctx, Variant{ModelID: modelID, Year: 2024, QualityScore: 60 + i})
				if err != nil {
					return err
				}
				if _, err := q.UpsertEngine(ctx, variantID, EngineSpec{DisplacementCC: 689}); err != nil {
					return err
				}
				if _, err := q.UpsertPhysical(ctx, variantID, PhysicalSpec{WetWeightKG: 184}); err != nil {
					return err
				}
				_, err = q.AddImage(ctx, variantID, "https://example.com/mt07.jpg")
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Manufacturers: 1, Models: 1, Variants: 1, Engines: 1, Physicals: 1, Images: 1}, counts)
}

func TestConcurrentUpsertSQLite(t *testing.T) {
	s, err := Open(context.Background(), DriverSQLite, t.TempDir()+"/bikes.db")
	require.NoError(t, err)
	defer s.Close()

	upsertConcurrently(t, s)
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q *Queries) error {
		if _, _, err := q.UpsertManufacturer(ctx, "Ducati"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Manufacturers)

	require.NoError(t, s.InTx(ctx, func(q *Queries) error {
		_, _, err := q.UpsertManufacturer(ctx, "Ducati")
		return err
	}))
	counts, err = s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Manufacturers)
}

func TestReads(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	makeID, _, err := s.UpsertManufacturer(ctx, "Honda")
	require.NoError(t, err)
	cbID, _, err := s.UpsertModel(ctx, makeID, "CB500F", "Naked")
	require.NoError(t, err)
	_, _, err = s.UpsertModel(ctx, makeID, "Gold Wing", "Touring")
	require.NoError(t, err)
	_, _, err = s.UpsertManufacturer(ctx, "Bimota")
	require.NoError(t, err)

	crawled := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	fresh, _, err := s.UpsertVariant(ctx, Variant{ModelID: cbID, Year: 2023, SourceURL: "https://bikez.com/a", QualityScore: 90, CrawledAt: crawled})
	require.NoError(t, err)
	never, _, err := s.UpsertVariant(ctx, Variant{ModelID: cbID, Year: 2022, SourceURL: "https://bikez.com/b", QualityScore: 30})
	require.NoError(t, err)
	_, _, err = s.UpsertVariant(ctx, Variant{ModelID: cbID, Year: 2021, QualityScore: 10})
	require.NoError(t, err)
	_, err = s.UpsertEngine(ctx, fresh, EngineSpec{DisplacementCC: 471})
	require.NoError(t, err)

	states, err := s.CrawlStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, fresh, states[0].VariantID)
	assert.True(t, crawled.Equal(states[0].LastCrawled), "got %v", states[0].LastCrawled)
	assert.Equal(t, never, states[1].VariantID)
	assert.True(t, states[1].LastCrawled.IsZero())

	low, err := s.LowQuality(ctx, 50, 10)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, VariantSummary{Manufacturer: "Honda", Model: "CB500F", Year: 2021, QualityScore: 10, ID: low[0].ID}, low[0])
	assert.Equal(t, never, low[1].ID)

	missing, err := s.MissingSpecs(ctx)
	require.NoError(t, err)
	assert.Equal(t, Missing{Engine: 2, Physical: 3}, missing)

	stats, err := s.QualityStats(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 130.0/3, stats.Average, 0.001)
	assert.Equal(t, 10, stats.Min)
	assert.Equal(t, 90, stats.Max)
	assert.Equal(t, 2, stats.Below50)

	orphans, err := s.Orphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, Orphans{Manufacturers: 1, Models: 1}, orphans)

	later := crawled.Add(48 * time.Hour)
	require.NoError(t, s.UpdateVariant(ctx, never, Variant{Price: 6200, CrawledAt: later}))

	states, err = s.CrawlStates(ctx)
	require.NoError(t, err)
	assert.True(t, later.Equal(states[1].LastCrawled))

	err = s.UpdateVariant(ctx, 9999, Variant{CrawledAt: later})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
}

func TestEmptyQualityStats(t *testing.T) {
	s := openMemory(t)
	stats, err := s.QualityStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QualityStats{}, stats)
}

// This test requires a running postgres instance
// If BIKECRAWLER_TEST_POSTGRES_DSN is not set, the test will be skipped
func TestPostgresUpsert(t *testing.T) {
	dsn := os.Getenv("BIKECRAWLER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Postgres is not configured, skipping test")
	}

	ctx := context.Background()
	s, err := Open(ctx, DriverPostgres, dsn)
	if err != nil {
		t.Skip("Postgres is not available, skipping test")
	}
	defer s.Close()

	_, err = s.db.ExecContext(ctx, "TRUNCATE manufacturers RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	require.NoError(t, s.InTx(ctx, func(q *Queries) error {
		makeID, _, err := q.UpsertManufacturer(ctx, "Yamaha")
		if err != nil {
			return err
		}
		modelID, _, err := q.UpsertModel(ctx, makeID, "MT-07", "Naked")
		if err != nil {
			return err
		}
		_, _, err = q.UpsertVariant(ctx, Variant{ModelID: modelID, Year: 2024, QualityScore: 70, CrawledAt: time.Now()})
		return err
	}))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Variants)

	_, err = s.db.ExecContext(ctx, "TRUNCATE manufacturers RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	upsertConcurrently(t, s)
}
