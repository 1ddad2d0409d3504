package override

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaLM/override-api/internal/types"
)

func TestBuildReport_NotFoundCountsAsFailed(t *testing.T) {
	results := []itemResult{
		{key: "1", status: types.StatusSuccess, message: "ok"},
		{key: "2", status: types.StatusNotFound, message: "missing"},
		{key: "3", status: types.StatusSkipped, message: "dup"},
		{key: "4", status: types.StatusFailed, message: "bad"},
	}

	report := buildReport(types.CategoryCluster, results, false, "")

	assert.Equal(t, 1, report.ProcessedCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, 2, report.FailedCount)
	assert.Equal(t, []string{"2", "4"}, report.Summary.FailedIDs)
	assert.Equal(t, []any{"ok", "missing", "dup", "bad"}, report.Details)
	assert.Equal(t, "Batch override completed – 1 processed, 2 failed, 1 skipped", report.Message)
}

func TestBuildReport_EmptySummaryListsEncodeAsArrays(t *testing.T) {
	report := buildReport(types.CategoryViolation, nil, false, "No valid points to process")

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"processed_ids":[]`)
	assert.Contains(t, string(raw), `"details":[]`)
	assert.Equal(t, "No valid points to process", report.Message)
}

func TestDetailFor_MissingCoordinatesOmitOriginal(t *testing.T) {
	rec := &types.SourceRecord{
		ID:         "trips_acme::1::2",
		Point:      types.GeoPoint{Lat: math.NaN(), Lon: 10},
		HeadingDeg: math.NaN(),
	}
	out := &types.SnapOutcome{ID: rec.ID, Method: types.MethodSnapFailed, Final: rec.Point}
	r := itemResult{key: "trips_acme::1::2", status: types.StatusFailed, message: "failed", record: rec, outcome: out}

	d := detailFor(types.CategoryViolation, r)

	assert.Equal(t, "trips_acme::1::2", d.PointID)
	assert.Empty(t, d.ClusterID)
	assert.Nil(t, d.Original)
	assert.Nil(t, d.Snapped)
	assert.Nil(t, d.Extrapolated)
	assert.Nil(t, d.FinalInserted)

	_, err := json.Marshal(d)
	assert.NoError(t, err)
}

func TestDetailFor_ExtrapolatedInserted(t *testing.T) {
	rec := &types.SourceRecord{ID: "7", Point: types.GeoPoint{Lat: 1, Lon: 2}, HeadingDeg: 45}
	out := &types.SnapOutcome{
		ID:              "7",
		Method:          types.MethodExtrapolatedNoMatch,
		Final:           types.GeoPoint{Lat: 1.0001, Lon: 2.0001},
		FinalHeadingDeg: 45,
	}
	r := itemResult{key: "7", status: types.StatusSuccess, record: rec, outcome: out, inserted: true}

	d := detailFor(types.CategoryCluster, r)

	assert.Equal(t, types.RecordID("7"), d.ClusterID)
	require.NotNil(t, d.Extrapolated)
	assert.Equal(t, out.Final, *d.Extrapolated)
	require.NotNil(t, d.FinalInserted)
	assert.Equal(t, out.Final, *d.FinalInserted)
	assert.Equal(t, 45.0, *d.FinalBearing)
	assert.True(t, d.Inserted)
}

func TestMessages(t *testing.T) {
	id := int64(42)
	assert.Equal(t, "Cluster 9 skipped — ACTIVE override exists (ID: 42)", clusterMessages.duplicate("9", &id))
	assert.Equal(t, "Point id: k skipped — ACTIVE override exists (ID: unknown)", pointMessages.duplicate("k", nil))
	assert.Equal(t, "Point id: k not processed", pointMessages.notProcessed("k"))
	assert.Equal(t, "Point id: k not found or invalid", stopSignMessages.notProcessed("k"))

	rec := &types.SourceRecord{CountryCode: "IND"}
	assert.Equal(t, "Point id: k snap failed (country: IND): no road", pointMessages.snapFailed("k", rec, "no road"))
	assert.Equal(t, "Cluster 9 snap failed: no road", clusterMessages.snapFailed("9", rec, "no road"))
}
