package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sjsage522/bikecrawler/internal/normalize"
	apperrors "sjsage522/bikecrawler/pkg/errors"
)

// Variant is one model year and package of a model
type Variant struct {
	ModelID      int64
	Year         int
	Package      string
	Price        float64
	Currency     string
	Source       string
	SourceURL    string
	QualityScore int
	CrawledAt    time.Time
}

// EngineSpec is the engine row of a variant; zero values are treated as unknown
type EngineSpec struct {
	EngineType     string
	DisplacementCC float64
	PowerHP        float64
	PowerRPM       int
	TorqueNM       float64
	TorqueRPM      int
	Raw            string
}

// PhysicalSpec is the physical row of a variant; zero values are treated as unknown
type PhysicalSpec struct {
	DryWeightKG   float64
	WetWeightKG   float64
	SeatHeightMM  float64
	WheelbaseMM   float64
	FuelCapacityL float64
}

func nullFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// UpsertManufacturer returns the id of the manufacturer with name's slug, creating it if needed
func (q *Queries) UpsertManufacturer(ctx context.Context, name string) (int64, bool, error) {
	slug := normalize.Slug(name)
	const lookup = `SELECT id FROM manufacturers WHERE slug = ?`

	var id int64
	err := q.queryRow(ctx, lookup, slug).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, apperrors.NewStorage("failed to look up manufacturer", err)
	}

	err = q.queryRow(ctx,
		`INSERT INTO manufacturers (name, slug, created_at) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING RETURNING id`,
		name, slug, time.Now().UTC(),
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, apperrors.NewStorage("failed to create manufacturer", err)
	}

	// created by a concurrent writer
	if err := q.queryRow(ctx, lookup, slug).Scan(&id); err != nil {
		return 0, false, apperrors.NewStorage("failed to look up manufacturer", err)
	}
	return id, false, nil
}

// UpsertModel returns the id of a manufacturer's model matched by name slug, creating it if
// needed. The first spelling seen is kept and an empty category of an existing model is filled in.
func (q *Queries) UpsertModel(ctx context.Context, manufacturerID int64, name, category string) (int64, bool, error) {
	slug := normalize.Slug(name)
	const lookup = `SELECT id, category FROM motorcycle_models WHERE manufacturer_id = ? AND slug = ?`

	var (
		id       int64
		existing string
	)
	err := q.queryRow(ctx, lookup, manufacturerID, slug).Scan(&id, &existing)
	if errors.Is(err, sql.ErrNoRows) {
		err = q.queryRow(ctx,
			`INSERT INTO motorcycle_models (manufacturer_id, name, slug, category) VALUES (?, ?, ?, ?)
			ON CONFLICT (manufacturer_id, slug) DO NOTHING RETURNING id`,
			manufacturerID, name, slug, category,
		).Scan(&id)
		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, false, apperrors.NewStorage("failed to create model", err)
		}
		err = q.queryRow(ctx, lookup, manufacturerID, slug).Scan(&id, &existing)
	}
	if err != nil {
		return 0, false, apperrors.NewStorage("failed to look up model", err)
	}

	if existing == "" && category != "" {
		if _, err := q.exec(ctx, `UPDATE motorcycle_models SET category = ? WHERE id = ? AND category = ''`, category, id); err != nil {
			return 0, false, apperrors.NewStorage("failed to update model", err)
		}
	}
	return id, false, nil
}

// variantRow holds the mergeable columns of a stored variant
type variantRow struct {
	price       sql.NullFloat64
	currency    string
	source      string
	sourceURL   string
	quality     int
	lastCrawled sql.NullTime
}

const selectVariant = `SELECT id, price, currency, source, source_url, quality_score, last_crawled_at
	FROM motorcycle_variants`

func scanVariant(row *sql.Row) (int64, variantRow, error) {
	var (
		id  int64
		cur variantRow
	)
	err := row.Scan(&id, &cur.price, &cur.currency, &cur.source, &cur.sourceURL, &cur.quality, &cur.lastCrawled)
	return id, cur, err
}

// UpsertVariant returns the id of the (model, year, package slug) variant, creating it if needed.
// On update non-empty values win, the quality score keeps its maximum and the crawl time its latest.
func (q *Queries) UpsertVariant(ctx context.Context, v Variant) (int64, bool, error) {
	pkgSlug := normalize.Slug(v.Package)
	lookup := selectVariant + ` WHERE model_id = ? AND year = ? AND package_slug = ?`

	id, cur, err := scanVariant(q.queryRow(ctx, lookup, v.ModelID, v.Year, pkgSlug))
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now().UTC()
		err = q.queryRow(ctx,
			`INSERT INTO motorcycle_variants
			(model_id, year, package, package_slug, price, currency, source, source_url, quality_score,
			last_crawled_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (model_id, year, package_slug) DO NOTHING RETURNING id`,
			v.ModelID, v.Year, v.Package, pkgSlug, nullFloat(v.Price), v.Currency, v.Source, v.SourceURL,
			v.QualityScore, nullTime(v.CrawledAt), now, now,
		).Scan(&id)
		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, false, apperrors.NewStorage("failed to create variant", err)
		}
		id, cur, err = scanVariant(q.queryRow(ctx, lookup, v.ModelID, v.Year, pkgSlug))
	}
	if err != nil {
		return 0, false, apperrors.NewStorage("failed to look up variant", err)
	}

	if err := q.mergeVariant(ctx, id, cur, v); err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// UpdateVariant merges v into the variant with the given id under the UpsertVariant rules.
// The identity fields of v are ignored.
func (q *Queries) UpdateVariant(ctx context.Context, id int64, v Variant) error {
	_, cur, err := scanVariant(q.queryRow(ctx, selectVariant+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewStorage(fmt.Sprintf("variant %d not found", id), err)
	}
	if err != nil {
		return apperrors.NewStorage("failed to look up variant", err)
	}
	return q.mergeVariant(ctx, id, cur, v)
}

func (q *Queries) mergeVariant(ctx context.Context, id int64, cur variantRow, v Variant) error {
	if v.Price > 0 {
		cur.price = sql.NullFloat64{Float64: v.Price, Valid: true}
	}
	if v.Currency != "" {
		cur.currency = v.Currency
	}
	if v.Source != "" {
		cur.source = v.Source
	}
	if v.SourceURL != "" {
		cur.sourceURL = v.SourceURL
	}
	if v.QualityScore > cur.quality {
		cur.quality = v.QualityScore
	}
	if !v.CrawledAt.IsZero() && (!cur.lastCrawled.Valid || v.CrawledAt.After(cur.lastCrawled.Time)) {
		cur.lastCrawled = sql.NullTime{Time: v.CrawledAt.UTC(), Valid: true}
	}

	_, err := q.exec(ctx,
		`UPDATE motorcycle_variants SET price = ?, currency = ?, source = ?, source_url = ?,
		quality_score = ?, last_crawled_at = ?, updated_at = ? WHERE id = ?`,
		cur.price, cur.currency, cur.source, cur.sourceURL, cur.quality, cur.lastCrawled, time.Now().UTC(), id,
	)
	if err != nil {
		return apperrors.NewStorage("failed to update variant", err)
	}
	return nil
}

// UpsertEngine writes the engine row of a variant; known values are never overwritten by unknown ones
func (q *Queries) UpsertEngine(ctx context.Context, variantID int64, e EngineSpec) (bool, error) {
	res, err := q.exec(ctx,
		`INSERT INTO engine_specs
		(variant_id, engine_type, displacement_cc, power_hp, power_rpm, torque_nm, torque_rpm, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (variant_id) DO NOTHING`,
		variantID, e.EngineType, nullFloat(e.DisplacementCC), nullFloat(e.PowerHP), nullInt(e.PowerRPM),
		nullFloat(e.TorqueNM), nullInt(e.TorqueRPM), e.Raw,
	)
	if err != nil {
		return false, apperrors.NewStorage("failed to create engine specs", err)
	}
	if created, err := inserted(res); err != nil || created {
		return created, err
	}

	_, err = q.exec(ctx,
		`UPDATE engine_specs SET
		engine_type = CASE WHEN ? <> '' THEN ? ELSE engine_type END,
		displacement_cc = COALESCE(?, displacement_cc),
		power_hp = COALESCE(?, power_hp),
		power_rpm = COALESCE(?, power_rpm),
		torque_nm = COALESCE(?, torque_nm),
		torque_rpm = COALESCE(?, torque_rpm),
		raw = CASE WHEN ? <> '' THEN ? ELSE raw END
		WHERE variant_id = ?`,
		e.EngineType, e.EngineType, nullFloat(e.DisplacementCC), nullFloat(e.PowerHP), nullInt(e.PowerRPM),
		nullFloat(e.TorqueNM), nullInt(e.TorqueRPM), e.Raw, e.Raw, variantID,
	)
	if err != nil {
		return false, apperrors.NewStorage("failed to update engine specs", err)
	}
	return false, nil
}

// UpsertPhysical writes the physical row of a variant; known values are never overwritten by unknown ones
func (q *Queries) UpsertPhysical(ctx context.Context, variantID int64, p PhysicalSpec) (bool, error) {
	res, err := q.exec(ctx,
		`INSERT INTO physical_specs
		(variant_id, dry_weight_kg, wet_weight_kg, seat_height_mm, wheelbase_mm, fuel_capacity_l)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (variant_id) DO NOTHING`,
		variantID, nullFloat(p.DryWeightKG), nullFloat(p.WetWeightKG), nullFloat(p.SeatHeightMM),
		nullFloat(p.WheelbaseMM), nullFloat(p.FuelCapacityL),
	)
	if err != nil {
		return false, apperrors.NewStorage("failed to create physical specs", err)
	}
	if created, err := inserted(res); err != nil || created {
		return created, err
	}

	_, err = q.exec(ctx,
		`UPDATE physical_specs SET
		dry_weight_kg = COALESCE(?, dry_weight_kg),
		wet_weight_kg = COALESCE(?, wet_weight_kg),
		seat_height_mm = COALESCE(?, seat_height_mm),
		wheelbase_mm = COALESCE(?, wheelbase_mm),
		fuel_capacity_l = COALESCE(?, fuel_capacity_l)
		WHERE variant_id = ?`,
		nullFloat(p.DryWeightKG), nullFloat(p.WetWeightKG), nullFloat(p.SeatHeightMM),
		nullFloat(p.WheelbaseMM), nullFloat(p.FuelCapacityL), variantID,
	)
	if err != nil {
		return false, apperrors.NewStorage("failed to update physical specs", err)
	}
	return false, nil
}

// AddImage links an image URL to a variant once
func (q *Queries) AddImage(ctx context.Context, variantID int64, url string) (bool, error) {
	res, err := q.exec(ctx,
		`INSERT INTO motorcycle_images (variant_id, url) VALUES (?, ?)
		ON CONFLICT (variant_id, url) DO NOTHING`,
		variantID, url,
	)
	if err != nil {
		return false, apperrors.NewStorage("failed to add image", err)
	}
	return inserted(res)
}

// inserted reports whether an ON CONFLICT DO NOTHING insert wrote its row
func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewStorage("failed to read affected rows", err)
	}
	return n > 0, nil
}
