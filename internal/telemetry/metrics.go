package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/snowsentry/snowsentry"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	CheckCount    metric.Int64Counter
	CheckDuration metric.Float64Histogram
	CheckErrors   metric.Int64Counter
	ToolDuration  metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	checkCount, _ := meter.Int64Counter("snowsentry.check.count",
		metric.WithDescription("Total number of audit checks executed"),
	)
	checkDuration, _ := meter.Float64Histogram("snowsentry.check.duration",
		metric.WithDescription("Audit check execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	checkErrors, _ := meter.Int64Counter("snowsentry.check.errors",
		metric.WithDescription("Total number of failed audit checks"),
	)
	toolDuration, _ := meter.Float64Histogram("snowsentry.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		CheckCount:    checkCount,
		CheckDuration: checkDuration,
		CheckErrors:   checkErrors,
		ToolDuration:  toolDuration,
	}
}

func (i *Instruments) RecordCheckDuration(ctx context.Context, ms float64) {
	i.CheckDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementCheckCount(ctx context.Context) {
	i.CheckCount.Add(ctx, 1)
}

func (i *Instruments) IncrementCheckErrors(ctx context.Context) {
	i.CheckErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
