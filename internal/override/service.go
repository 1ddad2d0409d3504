// Package override runs override batches: it validates a request, loads the
// authoritative rows from the store, snaps every row concurrently, suppresses
// duplicates, writes the accepted rows in one call and reports per item in
// input order.
//
// The three categories (cluster, violation point, stop-sign point) share one
// pipeline and differ only in how rows are fetched, whether duplicates are
// checked and how messages read.
package override

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/satyaLM/override-api/internal/types"
)

// Store is the external store used by the pipeline.
type Store interface {
	FetchClusters(ctx context.Context, items []types.ClusterItem) (*types.SourceBatch, error)
	FetchViolations(ctx context.Context, items []types.PointItem) (*types.SourceBatch, error)
	FetchStopSigns(ctx context.Context, items []types.PointItem) (*types.SourceBatch, error)
	CheckDuplicate(ctx context.Context, p types.GeoPoint, headingDeg float64, expectedSpeed *float64) (types.DuplicateCheck, error)
	WriteOverrides(ctx context.Context, category types.Category, rows []types.OverrideRow) error
}

// Decider turns a source record into a snap outcome. *snap.Policy implements
// it.
type Decider interface {
	Decide(ctx context.Context, rec types.SourceRecord) types.SnapOutcome
	Extrapolate(rec types.SourceRecord) types.SnapOutcome
}

// RequestValidator checks request struct tags. *core.Validator implements it.
type RequestValidator interface {
	ValidateStruct(s any) error
}

// EventPublisher delivers the audit event of a completed batch.
type EventPublisher interface {
	PublishBatchCompleted(ctx context.Context, evt types.BatchCompletedEvent) error
}

// BatchMetrics records per-batch counts.
type BatchMetrics interface {
	RecordBatch(ctx context.Context, category types.Category, processed, skipped, failed int, duration time.Duration)
}

// OutcomeObserver counts per-item snap methods. *snap.Metrics implements it.
type OutcomeObserver interface {
	ObserveOutcome(category types.Category, method types.SnapMethod)
}

// Config holds orchestration limits and policy switches.
type Config struct {
	MaxItems    int
	Concurrency int
	// AcceptHeadingRejected persists heading-rejected items at their
	// dead-reckoned point. When false they are reported as skipped.
	AcceptHeadingRejected bool
	// StopSignSnap runs stop-sign events through the road locator. When false
	// they are only dead-reckoned.
	StopSignSnap bool
	// PersistReserve is kept free before the caller's deadline for the
	// duplicate check and the write. Snapping stops when it is reached.
	PersistReserve time.Duration
	// PersistTimeout bounds the duplicate check and the write, which run
	// detached from the caller's cancellation.
	PersistTimeout time.Duration
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxItems:              500,
		Concurrency:           8,
		AcceptHeadingRejected: true,
		StopSignSnap:          true,
		PersistReserve:        20 * time.Second,
		PersistTimeout:        30 * time.Second,
	}
}

// Deps are the collaborators of a Service. Events, Metrics, Outcomes and
// Clock are optional.
type Deps struct {
	Store     Store
	Policy    Decider
	Validator RequestValidator
	Events    EventPublisher
	Metrics   BatchMetrics
	Outcomes  OutcomeObserver
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Service runs override batches. It is safe for concurrent use; overlapping
// batches are serialized only by the store.
type Service struct {
	cfg       Config
	store     Store
	policy    Decider
	validator RequestValidator
	events    EventPublisher
	metrics   BatchMetrics
	outcomes  OutcomeObserver
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(cfg Config, deps Deps) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultConfig().PersistTimeout
	}
	s := &Service{
		cfg:       cfg,
		store:     deps.Store,
		policy:    deps.Policy,
		validator: deps.Validator,
		events:    deps.Events,
		metrics:   deps.Metrics,
		outcomes:  deps.Outcomes,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// requestItem is one input item reduced to the key the store reports it by.
type requestItem struct {
	key string
}

// pipeline is the category-specific part of a batch.
type pipeline struct {
	category        types.Category
	items           []requestItem
	detailed        bool
	fetch           func(ctx context.Context) (*types.SourceBatch, error)
	snap            bool
	checkDuplicates bool
	msgs            messages
	noRowsMessage   func(batch *types.SourceBatch) string
}

// CreateClusterOverrides runs a cluster batch.
func (s *Service) CreateClusterOverrides(ctx context.Context, req types.ClusterBatchRequest) (*types.BatchReport, error) {
	if err := s.validateClusters(req); err != nil {
		return nil, err
	}
	items := make([]requestItem, len(req.ClusterIDs))
	for i, it := range req.ClusterIDs {
		items[i] = requestItem{key: it.ClusterID.String()}
	}
	return s.run(ctx, pipeline{
		category: types.CategoryCluster,
		items:    items,
		detailed: req.Detailed,
		fetch: func(ctx context.Context) (*types.SourceBatch, error) {
			return s.store.FetchClusters(ctx, req.ClusterIDs)
		},
		snap: true,
		msgs: clusterMessages,
		noRowsMessage: func(*types.SourceBatch) string {
			return "No valid clusters to process"
		},
	})
}

// CreateViolationOverrides runs a violation-point batch. Accepted points are
// checked against active overrides before the write.
func (s *Service) CreateViolationOverrides(ctx context.Context, req types.PointBatchRequest) (*types.BatchReport, error) {
	if err := s.validatePoints(req); err != nil {
		return nil, err
	}
	return s.run(ctx, pipeline{
		category: types.CategoryViolation,
		items:    pointItems(req.PointIDs),
		detailed: req.Detailed,
		fetch: func(ctx context.Context) (*types.SourceBatch, error) {
			return s.store.FetchViolations(ctx, req.PointIDs)
		},
		snap:            true,
		checkDuplicates: true,
		msgs:            pointMessages,
		noRowsMessage: func(batch *types.SourceBatch) string {
			if batch.SkippedCount > 0 {
				return fmt.Sprintf("All %d points already have ACTIVE overrides", batch.SkippedCount)
			}
			return "No valid points to process"
		},
	})
}

// CreateStopSignOverrides runs a stop-sign batch.
func (s *Service) CreateStopSignOverrides(ctx context.Context, req types.PointBatchRequest) (*types.BatchReport, error) {
	if err := s.validatePoints(req); err != nil {
		return nil, err
	}
	return s.run(ctx, pipeline{
		category: types.CategoryStopSign,
		items:    pointItems(req.PointIDs),
		detailed: req.Detailed,
		fetch: func(ctx context.Context) (*types.SourceBatch, error) {
			return s.store.FetchStopSigns(ctx, req.PointIDs)
		},
		snap: s.cfg.StopSignSnap,
		msgs: stopSignMessages,
		noRowsMessage: func(*types.SourceBatch) string {
			return "No valid stop-sign events found"
		},
	})
}

func pointItems(points []types.PointItem) []requestItem {
	items := make([]requestItem, len(points))
	for i, p := range points {
		items[i] = requestItem{key: p.PointKey()}
	}
	return items
}

// run executes Fetch, SnapFanOut, DuplicateCheck, Persist and Report for a
// validated request.
func (s *Service) run(ctx context.Context, p pipeline) (*types.BatchReport, error) {
	start := s.clock.Now()
	batchID := uuid.NewString()
	logger := types.LoggerFromContext(ctx, s.logger).With(
		slog.String("category", string(p.category)),
		slog.String("batch_id", batchID),
	)
	ctx = types.WithLogger(types.WithBatchID(ctx, batchID), logger)
	logger.InfoContext(ctx, "override batch received", slog.Int("items", len(p.items)))

	batch, err := p.fetch(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "source fetch failed", slog.Any("error", err))
		return nil, err
	}

	records := matchRecords(ctx, logger, p.items, batch.Records)
	if len(records) == 0 {
		logger.WarnContext(ctx, "no valid source rows",
			slog.Int("failed_count", batch.FailedCount),
			slog.Int("skipped_count", batch.SkippedCount),
		)
		results := make([]itemResult, len(p.items))
		for i, it := range p.items {
			results[i] = storeClassification(p.msgs, it.key, batch)
		}
		report := buildReport(p.category, results, p.detailed, p.noRowsMessage(batch))
		return s.finish(ctx, p, report, nil, start), nil
	}

	snapCtx, cancelSnap := s.snapContext(ctx)
	outcomes := s.fanOut(snapCtx, p, records)
	cancelSnap()

	// Completed outcomes are persisted even when the caller's deadline has
	// passed during snapping.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancelPersist()

	if p.checkDuplicates {
		if err := s.markDuplicates(persistCtx, p, records, outcomes); err != nil {
			logger.ErrorContext(ctx, "duplicate check failed", slog.Any("error", err))
			return nil, err
		}
	}

	results := make([]itemResult, len(p.items))
	var rows []types.OverrideRow
	for i, it := range p.items {
		rec, ok := records[it.key]
		if !ok {
			results[i] = storeClassification(p.msgs, it.key, batch)
			continue
		}
		out := outcomes[it.key]
		res := s.classify(p, it.key, rec, out)
		if res.status == types.StatusSuccess {
			rows = append(rows, toOverrideRow(p.category, rec, out))
			res.inserted = true
		}
		results[i] = res
	}

	if len(rows) > 0 {
		if err := s.store.WriteOverrides(persistCtx, p.category, rows); err != nil {
			logger.ErrorContext(ctx, "override write failed", slog.Int("rows", len(rows)), slog.Any("error", err))
			return nil, err
		}
	} else {
		logger.InfoContext(ctx, "no rows to insert")
	}

	report := buildReport(p.category, results, p.detailed, "")
	return s.finish(persistCtx, p, report, outcomes, start), nil
}

// snapContext derives the snapping budget: the caller's deadline less
// PersistReserve, capped at half of the time remaining.
func (s *Service) snapContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || s.cfg.PersistReserve <= 0 {
		return context.WithCancel(ctx)
	}
	reserve := min(s.cfg.PersistReserve, time.Until(deadline)/2)
	if reserve <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

// matchRecords indexes fetched rows by the key of a requested item. Rows for
// keys that were not requested, and repeated rows, are dropped.
func matchRecords(ctx context.Context, logger *slog.Logger, items []requestItem, recs []types.SourceRecord) map[string]*types.SourceRecord {
	requested := make(map[string]struct{}, len(items))
	for _, it := range items {
		requested[it.key] = struct{}{}
	}
	out := make(map[string]*types.SourceRecord, len(recs))
	for i := range recs {
		key := recs[i].ID.String()
		if _, ok := requested[key]; !ok {
			logger.WarnContext(ctx, "store returned a row that was not requested", slog.String("id", key))
			continue
		}
		if _, dup := out[key]; dup {
			continue
		}
		out[key] = &recs[i]
	}
	return out
}

// fanOut decides every record concurrently, bounded by Concurrency. A panic in
// one decision becomes a snap_failed outcome for that record only.
func (s *Service) fanOut(ctx context.Context, p pipeline, records map[string]*types.SourceRecord) map[string]*types.SnapOutcome {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	results := make([]types.SnapOutcome, len(keys))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, key := range keys {
		rec := records[key]
		g.Go(func() error {
			results[i] = s.decide(ctx, p, *rec)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*types.SnapOutcome, len(keys))
	for i, key := range keys {
		out[key] = &results[i]
	}
	return out
}

func (s *Service) decide(ctx context.Context, p pipeline, rec types.SourceRecord) (out types.SnapOutcome) {
	defer func() {
		if r := recover(); r != nil {
			types.LoggerFromContext(ctx, s.logger).ErrorContext(ctx, "snap panicked",
				slog.String("id", rec.ID.String()),
				slog.String("panic", fmt.Sprintf("%v", r)),
				slog.String("stack", string(debug.Stack())),
			)
			out = types.SnapOutcome{
				ID:                 rec.ID,
				Original:           rec.Point,
				OriginalHeadingDeg: rec.HeadingDeg,
				Final:              rec.Point,
				FinalHeadingDeg:    rec.HeadingDeg,
				Method:             types.MethodSnapFailed,
				Message:            "internal error while snapping",
			}
		}
	}()
	if !p.snap {
		return s.policy.Extrapolate(rec)
	}
	return s.policy.Decide(ctx, rec)
}

// markDuplicates reclassifies accepted outcomes that an active override
// already covers. A store error fails the batch.
func (s *Service) markDuplicates(ctx context.Context, p pipeline, records map[string]*types.SourceRecord, outcomes map[string]*types.SnapOutcome) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for key, out := range outcomes {
		if !s.accepted(out.Method) {
			continue
		}
		rec := records[key]
		g.Go(func() error {
			dup, err := s.store.CheckDuplicate(gCtx, out.Final, out.FinalHeadingDeg, rec.SpeedLimitRead)
			if err != nil {
				return err
			}
			if dup.Duplicate {
				out.Method = types.MethodDuplicateSkipped
				out.ExistingOverrideID = dup.ExistingID
				out.Message = p.msgs.duplicate(key, dup.ExistingID)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) accepted(m types.SnapMethod) bool {
	switch m {
	case types.MethodSnapped, types.MethodExtrapolatedNoMatch:
		return true
	case types.MethodHeadingRejected:
		return s.cfg.AcceptHeadingRejected
	default:
		return false
	}
}

// classify maps a record's own outcome to its report entry.
func (s *Service) classify(p pipeline, key string, rec *types.SourceRecord, out *types.SnapOutcome) itemResult {
	res := itemResult{key: key, record: rec, outcome: out}
	switch {
	case out.Method == types.MethodDuplicateSkipped:
		res.status = types.StatusSkipped
		res.message = out.Message
	case out.Method == types.MethodSnapFailed:
		res.status = types.StatusFailed
		res.message = p.msgs.snapFailed(key, rec, out.Message)
	case s.accepted(out.Method):
		res.status = types.StatusSuccess
		res.message = p.msgs.created(key)
	default:
		res.status = types.StatusSkipped
		res.message = p.msgs.headingMismatch(key, out)
	}
	return res
}

// storeClassification reports an item that produced no outcome of its own:
// skipped by the store, rejected by the store, or never returned.
func storeClassification(msgs messages, key string, batch *types.SourceBatch) itemResult {
	switch {
	case containsID(batch.SkippedIDs, key):
		return itemResult{key: key, status: types.StatusSkipped, message: msgs.alreadyActive(key)}
	case containsID(batch.FailedIDs, key):
		return itemResult{key: key, status: types.StatusNotFound, message: msgs.notFound(key)}
	default:
		return itemResult{key: key, status: types.StatusNotFound, message: msgs.notProcessed(key)}
	}
}

func containsID(ids []types.RecordID, key string) bool {
	for _, id := range ids {
		if id.String() == key {
			return true
		}
	}
	return false
}

func toOverrideRow(category types.Category, rec *types.SourceRecord, out *types.SnapOutcome) types.OverrideRow {
	row := types.OverrideRow{
		Category:       category,
		ID:             rec.ID,
		RowID:          rec.RowID,
		Point:          out.Final,
		HeadingDeg:     out.FinalHeadingDeg,
		Accuracy:       rec.Accuracy,
		SpeedLimitRead: rec.SpeedLimitRead,
		OverrideType:   rec.OverrideType,
		OverrideValue:  rec.OverrideValue,
		Source:         types.OverrideSourceManual,
	}
	if row.OverrideType == "" && category == types.CategoryCluster {
		row.OverrideType = types.DefaultOverrideType
	}
	// A forced value replaces the expected sign value.
	if rec.OverrideValue == nil {
		row.ExpectedValue = rec.ExpectedValue
	}
	return row
}

// finish records metrics, publishes the audit event and stamps the report.
func (s *Service) finish(ctx context.Context, p pipeline, report *types.BatchReport, outcomes map[string]*types.SnapOutcome, start time.Time) *types.BatchReport {
	logger := types.LoggerFromContext(ctx, s.logger)
	elapsed := s.clock.Since(start)
	report.BatchID = types.GetBatchID(ctx)

	methods := make(map[types.SnapMethod]int)
	for _, out := range outcomes {
		methods[out.Method]++
		if s.outcomes != nil {
			s.outcomes.ObserveOutcome(p.category, out.Method)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordBatch(ctx, p.category, report.ProcessedCount, report.SkippedCount, report.FailedCount, elapsed)
	}

	logger.InfoContext(ctx, "override batch completed",
		slog.Int("processed_count", report.ProcessedCount),
		slog.Int("skipped_count", report.SkippedCount),
		slog.Int("failed_count", report.FailedCount),
		slog.Duration("duration", elapsed),
	)

	if s.events != nil {
		evt := types.BatchCompletedEvent{
			BatchID:        report.BatchID,
			RequestID:      types.GetRequestID(ctx),
			Category:       p.category,
			Requested:      len(p.items),
			ProcessedCount: report.ProcessedCount,
			SkippedCount:   report.SkippedCount,
			FailedCount:    report.FailedCount,
			ProcessedIDs:   report.Summary.ProcessedIDs,
			SkippedIDs:     report.Summary.SkippedIDs,
			FailedIDs:      report.Summary.FailedIDs,
			Methods:        methods,
			CompletedAt:    s.clock.Now().UTC(),
			DurationMs:     elapsed.Milliseconds(),
		}
		if err := s.events.PublishBatchCompleted(ctx, evt); err != nil {
			logger.WarnContext(ctx, "batch audit event not published", slog.Any("error", err))
		}
	}
	return report
}
