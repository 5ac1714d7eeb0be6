package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestNoopInstruments(t *testing.T) {
	inst := NoopInstruments()
	assert.NotNil(t, inst)
	assert.NotNil(t, inst.CheckCount)
	assert.NotNil(t, inst.CheckDuration)
	assert.NotNil(t, inst.CheckErrors)
	assert.NotNil(t, inst.ToolDuration)

	// Should not panic.
	inst.IncrementCheckCount(context.Background())
	inst.RecordCheckDuration(context.Background(), 100.0)
	inst.IncrementCheckErrors(context.Background())
	inst.RecordToolDuration(context.Background(), 5.0)
}

func TestProvider_Tracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	p := &Provider{tp: tp}
	defer func() { _ = p.Shutdown(context.Background()) }()

	tracer := p.Tracer("snowsentry")
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "check-run")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "check-run", spans[0].Name)
	assert.Equal(t, "snowsentry", spans[0].InstrumentationScope.Name)
}

func TestProvider_Shutdown_Nil(t *testing.T) {
	var p *Provider
	err := p.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestSpanRecording(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	ctx := context.Background()
	_, span := tracer.Start(ctx, "test-op")
	span.SetAttributes(attribute.String("db.system", "snowflake"))
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "test-op", spans[0].Name)
}
