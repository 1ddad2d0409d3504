package override

import (
	"fmt"

	"github.com/satyaLM/override-api/internal/types"
)

// messages renders the per-item and batch texts of one category.
type messages struct {
	noun        string // "Cluster" or "Point id:"
	createID    string // "cluster id:" or "Point id:"
	showCountry bool
	// missingNotFound reports items the store never returned as not found
	// rather than not processed.
	missingNotFound bool
}

var (
	clusterMessages  = messages{noun: "Cluster", createID: "cluster id:"}
	pointMessages    = messages{noun: "Point id:", createID: "Point id:", showCountry: true}
	stopSignMessages = messages{noun: "Point id:", createID: "Point id:", showCountry: true, missingNotFound: true}
)

func (m messages) notFound(id string) string {
	return fmt.Sprintf("%s %s not found or invalid", m.noun, id)
}

func (m messages) alreadyActive(id string) string {
	return fmt.Sprintf("%s %s skipped (already have active override)", m.noun, id)
}

func (m messages) notProcessed(id string) string {
	if m.missingNotFound {
		return m.notFound(id)
	}
	return fmt.Sprintf("%s %s not processed", m.noun, id)
}

func (m messages) created(id string) string {
	return fmt.Sprintf("Created override for %s %s and inserted successfully", m.createID, id)
}

func (m messages) duplicate(id string, existing *int64) string {
	ref := "unknown"
	if existing != nil {
		ref = fmt.Sprintf("%d", *existing)
	}
	return fmt.Sprintf("%s %s skipped — ACTIVE override exists (ID: %s)", m.noun, id, ref)
}

func (m messages) headingMismatch(id string, out *types.SnapOutcome) string {
	diff := 0.0
	if out.HeadingDiffDeg != nil {
		diff = *out.HeadingDiffDeg
	}
	return fmt.Sprintf("%s %s skipped (road heading differs by %.1f°)", m.noun, id, diff)
}

func (m messages) snapFailed(id string, rec *types.SourceRecord, reason string) string {
	if !m.showCountry {
		return fmt.Sprintf("%s %s snap failed: %s", m.noun, id, reason)
	}
	return fmt.Sprintf("%s %s snap failed (country: %s): %s", m.noun, id, rec.CountryCode, reason)
}

func completedMessage(processed, failed, skipped int) string {
	return fmt.Sprintf("Batch override completed – %d processed, %d failed, %d skipped", processed, failed, skipped)
}

// itemResult is the final classification of one requested item.
type itemResult struct {
	key      string
	status   types.ItemStatus
	message  string
	record   *types.SourceRecord
	outcome  *types.SnapOutcome
	inserted bool
}

// buildReport assembles the response in input order and derives every count
// from the per-item results, so each item is counted exactly once.
func buildReport(category types.Category, results []itemResult, detailed bool, message string) *types.BatchReport {
	report := &types.BatchReport{
		Success: true,
		Details: make([]any, 0, len(results)),
	}
	summary := &types.BatchSummary{
		TotalRequested: len(results),
		ProcessedIDs:   []string{},
		SkippedIDs:     []string{},
		FailedIDs:      []string{},
	}

	for _, r := range results {
		switch r.status.Counted() {
		case types.StatusSuccess:
			report.ProcessedCount++
			summary.ProcessedIDs = append(summary.ProcessedIDs, r.key)
		case types.StatusSkipped:
			report.SkippedCount++
			summary.SkippedIDs = append(summary.SkippedIDs, r.key)
		default:
			report.FailedCount++
			summary.FailedIDs = append(summary.FailedIDs, r.key)
		}
		if detailed {
			report.Details = append(report.Details, detailFor(category, r))
		} else {
			report.Details = append(report.Details, r.message)
		}
	}

	summary.ProcessedCount = report.ProcessedCount
	summary.SkippedCount = report.SkippedCount
	summary.FailedCount = report.FailedCount
	report.Summary = summary

	if message == "" {
		message = completedMessage(report.ProcessedCount, report.FailedCount, report.SkippedCount)
	}
	report.Message = message
	return report
}

func detailFor(category types.Category, r itemResult) types.BatchDetail {
	d := types.BatchDetail{
		Status:   r.status,
		Message:  r.message,
		Inserted: r.inserted,
	}
	if category == types.CategoryCluster {
		d.ClusterID = types.RecordID(r.key)
	} else {
		d.PointID = r.key
	}

	// Rows with missing coordinates or bearing carry NaN, which JSON cannot encode.
	if rec := r.record; rec != nil && rec.Point.Validate() == nil && types.ValidateHeading(rec.HeadingDeg) == nil {
		d.Original = &types.DetailOrigin{
			Lat:           rec.Point.Lat,
			Lon:           rec.Point.Lon,
			Bearing:       rec.HeadingDeg,
			Accuracy:      rec.Accuracy,
			SpeedLimit:    rec.SpeedLimitRead,
			OverrideValue: rec.OverrideValue,
		}
	}

	out := r.outcome
	if out == nil {
		return d
	}
	d.Method = out.Method
	d.ExistingOverrideID = out.ExistingOverrideID

	switch out.Method {
	case types.MethodSnapped:
		d.Snapped = &types.DetailSnap{
			Lat:      out.Final.Lat,
			Lon:      out.Final.Lon,
			WayID:    out.WayID,
			WayName:  out.WayName,
			Provider: out.Provider,
			RadiusM:  out.RadiusM,
		}
	case types.MethodSnapFailed:
	default:
		final := out.Final
		d.Extrapolated = &final
	}

	if r.inserted {
		final := out.Final
		heading := out.FinalHeadingDeg
		d.FinalInserted = &final
		d.FinalBearing = &heading
	}
	return d
}
