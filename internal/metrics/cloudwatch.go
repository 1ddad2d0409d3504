// Package metrics publishes request and batch telemetry to CloudWatch.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/jonboulle/clockwork"

	"github.com/satyaLM/override-api/internal/types"
)

// maxDatumsPerCall is the PutMetricData limit per request.
const maxDatumsPerCall = 1000

// defaultFlushInterval bounds how stale dashboards can be.
const defaultFlushInterval = time.Minute

// cloudwatchAPI is the subset of the CloudWatch SDK client used here.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Publisher buffers metric datums and ships them in bulk. Recording never
// blocks on the network; Run flushes the buffer periodically.
type Publisher struct {
	client        cloudwatchAPI
	namespace     string
	flushInterval time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger

	mu  sync.Mutex
	buf []cwTypes.MetricDatum
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock overrides the clock used for timestamps and the flush ticker.
func WithClock(c clockwork.Clock) Option {
	return func(p *Publisher) { p.clock = c }
}

// WithFlushInterval overrides the flush period.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// NewPublisher creates a Publisher writing under namespace.
func NewPublisher(client cloudwatchAPI, namespace string, logger *slog.Logger, opts ...Option) *Publisher {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		client:        client,
		namespace:     namespace,
		flushInterval: defaultFlushInterval,
		clock:         clockwork.NewRealClock(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RecordRequest implements core.MetricsCollector.
func (p *Publisher) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwTypes.Dimension{
		dim(types.DimMethod, method),
		dim(types.DimEndpoint, endpoint),
		dim(types.DimStatus, status),
	}
	p.add(
		p.datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwTypes.StandardUnitMilliseconds, dims),
		p.datum(types.MetricAPIRequestCount, 1, cwTypes.StandardUnitCount, dims),
	)
}

// RecordBatch records the outcome counts and duration of one override batch.
func (p *Publisher) RecordBatch(_ context.Context, category types.Category, processed, skipped, failed int, duration time.Duration) {
	dims := []cwTypes.Dimension{dim(types.DimCategory, string(category))}
	p.add(
		p.datum(types.MetricBatchProcessed, float64(processed), cwTypes.StandardUnitCount, dims),
		p.datum(types.MetricBatchSkipped, float64(skipped), cwTypes.StandardUnitCount, dims),
		p.datum(types.MetricBatchFailed, float64(failed), cwTypes.StandardUnitCount, dims),
		p.datum(types.MetricBatchDuration, float64(duration.Milliseconds()), cwTypes.StandardUnitMilliseconds, dims),
	)
}

// Flush sends every buffered datum. Datums of a failed call are dropped;
// metrics are best effort.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.buf
	p.buf = nil
	p.mu.Unlock()

	for start := 0; start < len(pending); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(pending))
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			return fmt.Errorf("failed to publish %d metric datums: %w", len(pending)-start, err)
		}
	}
	return nil
}

// Start runs the flush loop detached from ctx's cancellation and returns a
// stop function that ends it and waits for the final flush. Call stop after
// the HTTP server has drained so late batches are still published.
func (p *Publisher) Start(ctx context.Context) (stop func()) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(runCtx)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Run flushes on every interval until ctx is cancelled, then flushes once
// more with a short grace period.
func (p *Publisher) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := p.Flush(flushCtx); err != nil {
				p.logger.Warn("final metrics flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.Chan():
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("metrics flush failed", "error", err)
			}
		}
	}
}

func (p *Publisher) add(datums ...cwTypes.MetricDatum) {
	p.mu.Lock()
	p.buf = append(p.buf, datums...)
	p.mu.Unlock()
}

func (p *Publisher) datum(name string, value float64, unit cwTypes.StandardUnit, dims []cwTypes.Dimension) cwTypes.MetricDatum {
	return cwTypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(p.clock.Now().UTC()),
		Dimensions: dims,
	}
}

func dim(name, value string) cwTypes.Dimension {
	return cwTypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
