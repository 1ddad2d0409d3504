package types

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"testing"
)

func TestRecordID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  RecordID
	}{
		{"integer", `7`, "7"},
		{"string", `"abc-123"`, "abc-123"},
		{"numeric string", `"42"`, "42"},
		{"null", `null`, ""},
		{"large integer", `9007199254740993`, "9007199254740993"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id RecordID
			if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
				t.Fatalf("Unmarshal(%s) returned error: %v", tt.input, err)
			}
			if id != tt.want {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, id, tt.want)
			}
		})
	}

	var id RecordID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Error("expected error for object identifier")
	}
}

func TestRecordID_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A RecordID `json:"a"`
		B RecordID `json:"b"`
	}{A: "7", B: "trips_x::1::2"})
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	want := `{"a":7,"b":"trips_x::1::2"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestGeoPoint_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       GeoPoint
		wantErr ErrorCode
	}{
		{"valid", GeoPoint{Lat: 12.97, Lon: 77.59}, ""},
		{"poles and antimeridian", GeoPoint{Lat: -90, Lon: 180}, ""},
		{"lat too high", GeoPoint{Lat: 90.0001, Lon: 0}, ErrCodeValidationInvalidLat},
		{"lon too low", GeoPoint{Lat: 0, Lon: -180.5}, ErrCodeValidationInvalidLon},
		{"nan lat", GeoPoint{Lat: math.NaN(), Lon: 0}, ErrCodeValidationInvalidLat},
		{"inf lon", GeoPoint{Lat: 0, Lon: math.Inf(1)}, ErrCodeValidationInvalidLon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			appErr, ok := err.(*AppError)
			if !ok {
				t.Fatalf("Validate() = %v, want *AppError", err)
			}
			if appErr.Code != tt.wantErr {
				t.Errorf("Code = %q, want %q", appErr.Code, tt.wantErr)
			}
		})
	}
}

func TestRoadWay_Name(t *testing.T) {
	if got := (RoadWay{Tags: map[string]string{"name": "MG Road", "ref": "NH48"}}).Name(); got != "MG Road" {
		t.Errorf("Name() = %q, want MG Road", got)
	}
	if got := (RoadWay{Tags: map[string]string{"ref": "NH48"}}).Name(); got != "NH48" {
		t.Errorf("Name() = %q, want NH48", got)
	}
	if got := (RoadWay{}).Name(); got != "" {
		t.Errorf("Name() = %q, want empty", got)
	}
}

func TestItemStatus_Counted(t *testing.T) {
	if StatusNotFound.Counted() != StatusFailed {
		t.Error("not_found should count as failed")
	}
	if StatusSkipped.Counted() != StatusSkipped {
		t.Error("skipped should count as skipped")
	}
}

func TestContextValues(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithBatchID(ctx, "batch-1")

	if GetRequestID(ctx) != "req-1" {
		t.Errorf("GetRequestID = %q", GetRequestID(ctx))
	}
	if GetBatchID(ctx) != "batch-1" {
		t.Errorf("GetBatchID = %q", GetBatchID(ctx))
	}
	if GetRequestID(context.Background()) != "" {
		t.Error("expected empty request id on bare context")
	}

	fallback := slog.Default()
	if LoggerFromContext(ctx, fallback) != fallback {
		t.Error("expected fallback logger when none stored")
	}
	scoped := fallback.With("request_id", "req-1")
	if LoggerFromContext(WithLogger(ctx, scoped), fallback) != scoped {
		t.Error("expected stored logger")
	}
}
