package db

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/satyaLM/override-api/internal/types"
)

func jsonRow(body string) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*(dest[0].(*[]byte)) = []byte(body)
		return nil
	}}
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

// callArg returns the single positional SQL argument of the first recorded call.
func callArg(t *testing.T, db *mockDBTX) any {
	t.Helper()
	require.NotEmpty(t, db.Calls)
	args := db.Calls[0].Arguments.Get(2).([]any)
	require.Len(t, args, 1)
	return args[0]
}

func decodeElements(t *testing.T, elems []string) []map[string]any {
	t.Helper()
	out := make([]map[string]any, len(elems))
	for i, e := range elems {
		require.NoError(t, json.Unmarshal([]byte(e), &out[i]))
	}
	return out
}

func assertDBError(t *testing.T, err error) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestOverrideRepository_FetchClusters(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOverrideRepository(db, nil)

	db.On("QueryRow", mock.Anything, sqlFetchClusters, mock.Anything).Return(jsonRow(`{
		"processed_count": 1, "failed_count": 1, "failed_ids": [7],
		"skipped_count": 1, "skipped_ids": ["9"],
		"cluster_data": [{
			"cluster_id": 12, "lat": 12.97, "lon": 77.59, "bearing": 90,
			"accuracy": 4.5, "speed_limit_read_by_engine": 60,
			"override_type": null, "override_value": 40, "country_code_iso3": "IND"
		}]
	}`))

	batch, err := repo.FetchClusters(context.Background(), []types.ClusterItem{
		{ClusterID: "12", OverrideValueAlias: floatPtr(40)},
		{ClusterID: "7"},
		{ClusterID: "9", Type: strPtr(types.OverrideTypeSentinel)},
	})
	require.NoError(t, err)
	db.AssertExpectations(t)

	assert.Equal(t, 1, batch.ProcessedCount)
	assert.Equal(t, []types.RecordID{"7"}, batch.FailedIDs)
	assert.Equal(t, []types.RecordID{"9"}, batch.SkippedIDs)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	assert.Equal(t, types.RecordID("12"), rec.ID)
	assert.Equal(t, types.GeoPoint{Lat: 12.97, Lon: 77.59}, rec.Point)
	assert.Equal(t, 90.0, rec.HeadingDeg)
	assert.Equal(t, "IND", rec.CountryCode)
	assert.Equal(t, 60.0, *rec.ExpectedValue, "cluster rows expect the engine reading")
	assert.Equal(t, 40.0, *rec.OverrideValue)
	assert.Empty(t, rec.OverrideType)

	sent := decodeElements(t, callArg(t, db).([]string))
	require.Len(t, sent, 3)
	assert.Equal(t, float64(12), sent[0]["cluster_id"])
	assert.Equal(t, float64(40), sent[0]["override_value"])
	assert.NotContains(t, sent[1], "type")
	assert.Equal(t, "OVERRIDE_VALUE", sent[2]["type"])
}

func TestOverrideRepository_FetchClusters_NoRows(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOverrideRepository(db, nil)
	db.On("QueryRow", mock.Anything, sqlFetchClusters, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	batch, err := repo.FetchClusters(context.Background(), []types.ClusterItem{{ClusterID: "1"}})
	require.NoError(t, err)
	assert.Zero(t, batch.ProcessedCount)
	assert.Empty(t, batch.Records)
}

func TestOverrideRepository_FetchErrors(t *testing.T) {
	t.Run("query failure", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, sqlFetchViolations, mock.Anything).
			Return(&mockRow{scanErr: errors.New("connection reset")})

		_, err := NewOverrideRepository(db, nil).FetchViolations(context.Background(),
			[]types.PointItem{{TSPName: "acme", TripID: "1", EventIndex: "0"}})
		assertDBError(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, sqlFetchClusters, mock.Anything).Return(jsonRow(`{"cluster_data": "oops"}`))

		_, err := NewOverrideRepository(db, nil).FetchClusters(context.Background(),
			[]types.ClusterItem{{ClusterID: "1"}})
		assertDBError(t, err)
	})
}

func TestOverrideRepository_FetchViolations(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOverrideRepository(db, nil)
	db.On("QueryRow", mock.Anything, sqlFetchViolations, mock.Anything).Return(jsonRow(`{
		"processed_count": 1,
		"violation_data": [{
			"violation_id": 5001, "point_key": "trips_acme::88::3", "trip_id": 88, "event_index": 3,
			"lat": 40.71, "lon": -74.0, "bearing": 270, "accuracy": 3,
			"speed_limit_read_by_engine": 45, "override_type": "OVERRIDE_VALUE",
			"override_value": null, "expected_value": 35, "sign": "USA"
		}]
	}`))

	batch, err := repo.FetchViolations(context.Background(), []types.PointItem{
		{TSPName: "acme", TripID: "88", EventIndex: "3"},
	})
	require.NoError(t, err)

	rec := batch.Records[0]
	assert.Equal(t, types.RecordID("trips_acme::88::3"), rec.ID)
	assert.Equal(t, types.RecordID("5001"), rec.RowID)
	assert.Equal(t, "USA", rec.CountryCode)
	assert.Equal(t, 35.0, *rec.ExpectedValue)
	assert.Nil(t, rec.OverrideValue)
	assert.Equal(t, "OVERRIDE_VALUE", rec.OverrideType)

	sent := decodeElements(t, callArg(t, db).([]string))
	assert.Equal(t, "trips_acme::88::3", sent[0]["point_key"])
	assert.Equal(t, "acme", sent[0]["tsp_name"])
	assert.Equal(t, float64(88), sent[0]["trip_id"])
}

func TestOverrideRepository_FetchStopSigns(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOverrideRepository(db, nil)
	db.On("QueryRow", mock.Anything, sqlFetchStopSigns, mock.Anything).Return(jsonRow(`{
		"stop_data": [
			{"point_key": "trips_acme::1::2", "ss_latitude": 28.61, "ss_longitude": 77.2, "ss_bearing": 10, "ss_accuracy": 6},
			{"point_key": "trips_acme::1::3", "ss_latitude": null, "ss_longitude": 77.2, "ss_bearing": 10}
		]
	}`))

	batch, err := repo.FetchStopSigns(context.Background(), []types.PointItem{
		{TSPName: "trips_acme", TripID: "1", EventIndex: "2"},
		{TSPName: "acme", TripID: "1", EventIndex: "3"},
	})
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, types.RecordID("trips_acme::1::2"), batch.Records[0].ID)
	assert.Equal(t, 6.0, *batch.Records[0].Accuracy)
	assert.True(t, math.IsNaN(batch.Records[1].Point.Lat), "missing coordinates must not default to zero")

	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(callArg(t, db).(string)), &sent))
	require.Len(t, sent, 2)
	assert.Equal(t, "trips_acme::1::2", sent[0]["point_key"])
	assert.Equal(t, "trips_acme::1::3", sent[1]["point_key"])
}

func TestOverrideRepository_CheckDuplicate(t *testing.T) {
	p := types.GeoPoint{Lat: 12.9, Lon: 77.6}

	t.Run("duplicate", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, sqlCheckDuplicate, []any{12.9, 77.6, 90.0, floatPtr(60)}).
			Return(&mockRow{scanFn: func(dest ...any) error {
				dup, id := true, int64(42)
				*(dest[0].(**bool)) = &dup
				*(dest[1].(**int64)) = &id
				return nil
			}})

		got, err := NewOverrideRepository(db, nil).CheckDuplicate(context.Background(), p, 90, floatPtr(60))
		require.NoError(t, err)
		assert.True(t, got.Duplicate)
		assert.Equal(t, int64(42), *got.ExistingID)
		db.AssertExpectations(t)
	})

	t.Run("null verdict is not a duplicate", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, sqlCheckDuplicate, mock.Anything).Return(&mockRow{})

		got, err := NewOverrideRepository(db, nil).CheckDuplicate(context.Background(), p, 90, nil)
		require.NoError(t, err)
		assert.False(t, got.Duplicate)
		assert.Nil(t, got.ExistingID)
	})

	t.Run("store error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, sqlCheckDuplicate, mock.Anything).
			Return(&mockRow{scanErr: errors.New("timeout")})

		_, err := NewOverrideRepository(db, nil).CheckDuplicate(context.Background(), p, 90, nil)
		assertDBError(t, err)
	})
}

func TestOverrideRepository_WriteOverrides(t *testing.T) {
	row := types.OverrideRow{
		ID:             "trips_acme::1::2",
		RowID:          "17",
		Point:          types.GeoPoint{Lat: 12.5, Lon: 77.25},
		HeadingDeg:     180,
		Accuracy:       floatPtr(5),
		SpeedLimitRead: floatPtr(50),
		OverrideType:   types.DefaultOverrideType,
		ExpectedValue:  floatPtr(50),
		Source:         types.OverrideSourceManual,
	}

	tests := []struct {
		category types.Category
		sql      string
		check    func(t *testing.T, sent map[string]any)
	}{
		{types.CategoryCluster, sqlWriteClusters, func(t *testing.T, sent map[string]any) {
			assert.Equal(t, float64(17), sent["cluster_id"])
			assert.Equal(t, float64(180), sent["bearing"])
			assert.Equal(t, "OVERRIDE", sent["override_type"])
			assert.Nil(t, sent["override_value"])
			assert.Equal(t, float64(50), sent["expected_speed_sign_board_value"])
			assert.Equal(t, "MANUAL", sent["src"])
		}},
		{types.CategoryViolation, sqlWriteViolations, func(t *testing.T, sent map[string]any) {
			assert.Equal(t, float64(17), sent["violation_id"])
			assert.Contains(t, sent, "override_speed_sign_board_value")
			assert.NotContains(t, sent, "src")
		}},
		{types.CategoryStopSign, sqlWriteStopSigns, func(t *testing.T, sent map[string]any) {
			assert.Equal(t, "trips_acme::1::2", sent["point_key"])
			assert.Equal(t, 12.5, sent["ep_latitude"])
			assert.Equal(t, 77.25, sent["ep_longitude"])
			assert.Equal(t, float64(5), sent["ss_accuracy"])
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			db := new(mockDBTX)
			db.On("Exec", mock.Anything, tt.sql, mock.Anything).Return(pgconn.NewCommandTag("CALL"), nil)

			err := NewOverrideRepository(db, nil).WriteOverrides(context.Background(), tt.category, []types.OverrideRow{row})
			require.NoError(t, err)
			db.AssertExpectations(t)

			sent := decodeElements(t, callArg(t, db).([]string))
			require.Len(t, sent, 1)
			tt.check(t, sent[0])
		})
	}
}

func TestOverrideRepository_WriteOverrides_Edges(t *testing.T) {
	t.Run("empty batch makes no call", func(t *testing.T) {
		db := new(mockDBTX)
		require.NoError(t, NewOverrideRepository(db, nil).WriteOverrides(context.Background(), types.CategoryCluster, nil))
		db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown category", func(t *testing.T) {
		db := new(mockDBTX)
		err := NewOverrideRepository(db, nil).WriteOverrides(context.Background(), "speed_camera",
			[]types.OverrideRow{{ID: "1"}})
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
	})

	t.Run("procedure failure", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, sqlWriteViolations, mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

		err := NewOverrideRepository(db, nil).WriteOverrides(context.Background(), types.CategoryViolation,
			[]types.OverrideRow{{ID: "k", RowID: "1"}})
		assertDBError(t, err)
	})
}
