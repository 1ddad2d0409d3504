package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/satyaLM/override-api/internal/types"
)

// Store functions and procedures. Each call is a single statement and so runs
// in its own transaction.
const (
	sqlFetchClusters   = `SELECT to_jsonb(r) FROM public.get_batch_cluster_data_v2($1::jsonb[]) AS r`
	sqlFetchViolations = `SELECT to_jsonb(r) FROM public.get_batch_violation_data($1::jsonb[]) AS r`
	sqlFetchStopSigns  = `SELECT to_jsonb(r) FROM public.get_stop_sign_data($1::jsonb) AS r`
	sqlCheckDuplicate  = `SELECT duplicate, existing_id FROM public.check_adas_duplicate($1, $2, $3, $4)`
	sqlWriteClusters   = `CALL public.write_batch_overrides($1::json[])`
	sqlWriteViolations = `CALL public.write_adas_overrides($1::jsonb[])`
	sqlWriteStopSigns  = `CALL public.write_stop_overrides($1::jsonb[])`
)

// OverrideRepository fetches source rows, checks for active overrides and
// persists finalized overrides through the store's functions.
type OverrideRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewOverrideRepository creates a new OverrideRepository backed by the given
// database connection (pool or transaction).
func NewOverrideRepository(db DBTX, logger *slog.Logger) *OverrideRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverrideRepository{db: db, logger: logger}
}

// batchEnvelope is the row returned by the batch fetch functions.
type batchEnvelope struct {
	ProcessedCount int              `json:"processed_count"`
	FailedCount    int              `json:"failed_count"`
	FailedIDs      []types.RecordID `json:"failed_ids"`
	SkippedCount   int              `json:"skipped_count"`
	SkippedIDs     []types.RecordID `json:"skipped_ids"`
	ClusterData    []clusterRow     `json:"cluster_data"`
	ViolationData  []violationRow   `json:"violation_data"`
	StopData       []stopRow        `json:"stop_data"`
}

type clusterRow struct {
	ClusterID      types.RecordID `json:"cluster_id"`
	Lat            *float64       `json:"lat"`
	Lon            *float64       `json:"lon"`
	Bearing        *float64       `json:"bearing"`
	Accuracy       *float64       `json:"accuracy"`
	SpeedLimitRead *float64       `json:"speed_limit_read_by_engine"`
	OverrideType   *string        `json:"override_type"`
	OverrideValue  *float64       `json:"override_value"`
	CountryCode    *string        `json:"country_code_iso3"`
}

type violationRow struct {
	ViolationID    types.RecordID `json:"violation_id"`
	PointKey       string         `json:"point_key"`
	TripID         types.RecordID `json:"trip_id"`
	EventIndex     types.RecordID `json:"event_index"`
	Lat            *float64       `json:"lat"`
	Lon            *float64       `json:"lon"`
	Bearing        *float64       `json:"bearing"`
	Accuracy       *float64       `json:"accuracy"`
	SpeedLimitRead *float64       `json:"speed_limit_read_by_engine"`
	OverrideType   *string        `json:"override_type"`
	OverrideValue  *float64       `json:"override_value"`
	ExpectedValue  *float64       `json:"expected_value"`
	Sign           *string        `json:"sign"`
}

type stopRow struct {
	PointKey string   `json:"point_key"`
	Lat      *float64 `json:"ss_latitude"`
	Lon      *float64 `json:"ss_longitude"`
	Bearing  *float64 `json:"ss_bearing"`
	Accuracy *float64 `json:"ss_accuracy"`
}

type clusterFetchItem struct {
	ClusterID     types.RecordID `json:"cluster_id"`
	Type          *string        `json:"type,omitempty"`
	OverrideValue *float64       `json:"override_value,omitempty"`
}

type pointFetchItem struct {
	TSPName       string         `json:"tsp_name"`
	TripID        types.RecordID `json:"trip_id"`
	EventIndex    types.RecordID `json:"event_index"`
	PointKey      string         `json:"point_key"`
	Type          *string        `json:"type,omitempty"`
	OverrideValue *float64       `json:"override_value,omitempty"`
}

// FetchClusters loads the authoritative rows for a cluster batch.
func (r *OverrideRepository) FetchClusters(ctx context.Context, items []types.ClusterItem) (*types.SourceBatch, error) {
	payload := make([]any, len(items))
	for i, it := range items {
		payload[i] = clusterFetchItem{ClusterID: it.ClusterID, Type: it.Type, OverrideValue: it.Value()}
	}
	args, err := jsonElements(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode cluster batch", err)
	}

	env, err := r.fetch(ctx, "cluster", sqlFetchClusters, args)
	if err != nil {
		return nil, err
	}
	batch := env.sourceBatch()
	for _, row := range env.ClusterData {
		batch.Records = append(batch.Records, row.record())
	}
	return batch, nil
}

// FetchViolations loads the authoritative rows for a violation batch.
func (r *OverrideRepository) FetchViolations(ctx context.Context, items []types.PointItem) (*types.SourceBatch, error) {
	args, err := jsonElements(pointPayload(items))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode violation batch", err)
	}

	env, err := r.fetch(ctx, "violation", sqlFetchViolations, args)
	if err != nil {
		return nil, err
	}
	batch := env.sourceBatch()
	for _, row := range env.ViolationData {
		batch.Records = append(batch.Records, row.record())
	}
	return batch, nil
}

// FetchStopSigns loads the stop-sign events for a batch. The store function
// takes the whole batch as one JSON array and reports no counts.
func (r *OverrideRepository) FetchStopSigns(ctx context.Context, items []types.PointItem) (*types.SourceBatch, error) {
	arg, err := json.Marshal(pointPayload(items))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode stop-sign batch", err)
	}

	env, err := r.fetch(ctx, "stop_sign", sqlFetchStopSigns, string(arg))
	if err != nil {
		return nil, err
	}
	batch := env.sourceBatch()
	for _, row := range env.StopData {
		batch.Records = append(batch.Records, row.record())
	}
	return batch, nil
}

func (r *OverrideRepository) fetch(ctx context.Context, category, sql string, arg any) (*batchEnvelope, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, sql, arg).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return &batchEnvelope{}, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to fetch %s data", category), err)
	}

	var env batchEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("malformed %s data from store", category), err)
		}
	}
	types.LoggerFromContext(ctx, r.logger).DebugContext(ctx, "source rows fetched",
		slog.String("category", category),
		slog.Int("processed_count", env.ProcessedCount),
		slog.Int("failed_count", env.FailedCount),
		slog.Int("skipped_count", env.SkippedCount),
	)
	return &env, nil
}

// CheckDuplicate asks the store whether an active override already covers the
// corrected point.
func (r *OverrideRepository) CheckDuplicate(ctx context.Context, p types.GeoPoint, headingDeg float64, expectedSpeed *float64) (types.DuplicateCheck, error) {
	var (
		duplicate  *bool
		existingID *int64
	)
	err := r.db.QueryRow(ctx, sqlCheckDuplicate, p.Lat, p.Lon, headingDeg, expectedSpeed).Scan(&duplicate, &existingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.DuplicateCheck{}, nil
	}
	if err != nil {
		return types.DuplicateCheck{}, types.NewAppError(types.ErrCodeInternalDB, "failed to check for active override", err)
	}
	return types.DuplicateCheck{
		Duplicate:  duplicate != nil && *duplicate,
		ExistingID: existingID,
	}, nil
}

// WriteOverrides persists rows with one procedure call. All rows must belong
// to category.
func (r *OverrideRepository) WriteOverrides(ctx context.Context, category types.Category, rows []types.OverrideRow) error {
	if len(rows) == 0 {
		return nil
	}

	var (
		sql     string
		payload = make([]any, len(rows))
	)
	switch category {
	case types.CategoryCluster:
		sql = sqlWriteClusters
		for i, row := range rows {
			payload[i] = clusterWriteRow(row)
		}
	case types.CategoryViolation:
		sql = sqlWriteViolations
		for i, row := range rows {
			payload[i] = violationWriteRow(row)
		}
	case types.CategoryStopSign:
		sql = sqlWriteStopSigns
		for i, row := range rows {
			payload[i] = stopWriteRow(row)
		}
	default:
		return types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("unknown override category %q", category), nil)
	}

	args, err := jsonElements(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode override rows", err)
	}
	if _, err := r.db.Exec(ctx, sql, args); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to write %s overrides", category), err)
	}

	types.LoggerFromContext(ctx, r.logger).InfoContext(ctx, "overrides written",
		slog.String("category", string(category)),
		slog.Int("rows", len(rows)),
	)
	return nil
}

type clusterWrite struct {
	ClusterID      types.RecordID `json:"cluster_id"`
	Lat            float64        `json:"lat"`
	Lon            float64        `json:"lon"`
	Bearing        float64        `json:"bearing"`
	Accuracy       *float64       `json:"accuracy"`
	SpeedLimitRead *float64       `json:"speed_limit_read_by_engine"`
	OverrideType   string         `json:"override_type"`
	OverrideValue  *float64       `json:"override_value"`
	ExpectedValue  *float64       `json:"expected_speed_sign_board_value"`
	Source         string         `json:"src"`
}

type violationWrite struct {
	ViolationID    types.RecordID `json:"violation_id"`
	Lat            float64        `json:"lat"`
	Lon            float64        `json:"lon"`
	Bearing        float64        `json:"bearing"`
	Accuracy       *float64       `json:"accuracy"`
	SpeedLimitRead *float64       `json:"speed_limit_read_by_engine"`
	OverrideType   string         `json:"override_type"`
	OverrideValue  *float64       `json:"override_speed_sign_board_value"`
	ExpectedValue  *float64       `json:"expected_speed_sign_board_value"`
}

type stopWrite struct {
	PointKey string   `json:"point_key"`
	Lat      float64  `json:"ep_latitude"`
	Lon      float64  `json:"ep_longitude"`
	Bearing  float64  `json:"ss_bearing"`
	Accuracy *float64 `json:"ss_accuracy"`
	Source   string   `json:"src"`
}

func clusterWriteRow(row types.OverrideRow) clusterWrite {
	return clusterWrite{
		ClusterID:      row.RowID,
		Lat:            row.Point.Lat,
		Lon:            row.Point.Lon,
		Bearing:        row.HeadingDeg,
		Accuracy:       row.Accuracy,
		SpeedLimitRead: row.SpeedLimitRead,
		OverrideType:   row.OverrideType,
		OverrideValue:  row.OverrideValue,
		ExpectedValue:  row.ExpectedValue,
		Source:         row.Source,
	}
}

func violationWriteRow(row types.OverrideRow) violationWrite {
	return violationWrite{
		ViolationID:    row.RowID,
		Lat:            row.Point.Lat,
		Lon:            row.Point.Lon,
		Bearing:        row.HeadingDeg,
		Accuracy:       row.Accuracy,
		SpeedLimitRead: row.SpeedLimitRead,
		OverrideType:   row.OverrideType,
		OverrideValue:  row.OverrideValue,
		ExpectedValue:  row.ExpectedValue,
	}
}

func stopWriteRow(row types.OverrideRow) stopWrite {
	return stopWrite{
		PointKey: row.ID.String(),
		Lat:      row.Point.Lat,
		Lon:      row.Point.Lon,
		Bearing:  row.HeadingDeg,
		Accuracy: row.Accuracy,
		Source:   row.Source,
	}
}

func (e *batchEnvelope) sourceBatch() *types.SourceBatch {
	return &types.SourceBatch{
		ProcessedCount: e.ProcessedCount,
		FailedCount:    e.FailedCount,
		SkippedCount:   e.SkippedCount,
		FailedIDs:      e.FailedIDs,
		SkippedIDs:     e.SkippedIDs,
	}
}

func (c clusterRow) record() types.SourceRecord {
	return types.SourceRecord{
		ID:             c.ClusterID,
		RowID:          c.ClusterID,
		Point:          point(c.Lat, c.Lon),
		HeadingDeg:     orNaN(c.Bearing),
		CountryCode:    deref(c.CountryCode),
		Accuracy:       c.Accuracy,
		SpeedLimitRead: c.SpeedLimitRead,
		ExpectedValue:  c.SpeedLimitRead,
		OverrideType:   deref(c.OverrideType),
		OverrideValue:  c.OverrideValue,
	}
}

func (v violationRow) record() types.SourceRecord {
	return types.SourceRecord{
		ID:             types.RecordID(v.PointKey),
		RowID:          v.ViolationID,
		Point:          point(v.Lat, v.Lon),
		HeadingDeg:     orNaN(v.Bearing),
		CountryCode:    deref(v.Sign),
		Accuracy:       v.Accuracy,
		SpeedLimitRead: v.SpeedLimitRead,
		ExpectedValue:  v.ExpectedValue,
		OverrideType:   deref(v.OverrideType),
		OverrideValue:  v.OverrideValue,
	}
}

func (s stopRow) record() types.SourceRecord {
	return types.SourceRecord{
		ID:         types.RecordID(s.PointKey),
		RowID:      types.RecordID(s.PointKey),
		Point:      point(s.Lat, s.Lon),
		HeadingDeg: orNaN(s.Bearing),
		Accuracy:   s.Accuracy,
	}
}

func pointPayload(items []types.PointItem) []any {
	payload := make([]any, len(items))
	for i, it := range items {
		payload[i] = pointFetchItem{
			TSPName:       it.TSPName,
			TripID:        it.TripID,
			EventIndex:    it.EventIndex,
			PointKey:      it.PointKey(),
			Type:          it.Type,
			OverrideValue: it.Value(),
		}
	}
	return payload
}

// jsonElements encodes each value as one element of a json/jsonb array
// parameter.
func jsonElements(values []any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

// point maps missing coordinates to NaN so the row fails validation instead of
// snapping at (0, 0).
func point(lat, lon *float64) types.GeoPoint {
	return types.GeoPoint{Lat: orNaN(lat), Lon: orNaN(lon)}
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
