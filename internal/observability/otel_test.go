package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/topicforge/go-generation-backend/internal/config"
)

// preserveOTelGlobals snapshots the global tracer provider, propagator and
// construction seams and restores them when the test ends, so tests can
// mutate globals without leaking into each other.
func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	prevClient := newOTLPClient
	prevExporter := newOTLPExporterFn
	prevResource := newServiceResourceFn
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		newOTLPClient = prevClient
		newOTLPExporterFn = prevExporter
		newServiceResourceFn = prevResource
	})
}

func enabledOTELConfig(insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		Insecure:    insecure,
		ServiceName: "go-generation-backend-test",
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)

	prevTP := otel.GetTracerProvider()
	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("SetupOTel disabled: unexpected error %v", err)
	}
	if shutdown == nil {
		t.Fatal("SetupOTel disabled: shutdown must not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("disabled shutdown returned error %v", err)
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatal("disabled setup must not replace the global tracer provider")
	}
}

func TestSetupOTel_Insecure_SetsProviderAndPropagator(t *testing.T) {
	preserveOTelGlobals(t)

	clientCalls := 0
	newOTLPClient = func(opts ...otlptracegrpc.Option) otlptrace.Client {
		clientCalls++
		return otlptracegrpc.NewClient(opts...)
	}

	shutdown, err := SetupOTel(context.Background(), enabledOTELConfig(true), "test")
	if err != nil {
		t.Fatalf("SetupOTel: unexpected error %v", err)
	}
	if clientCalls != 1 {
		t.Fatalf("OTLP client constructed %d times, want 1", clientCalls)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("global tracer provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}

	// The composite propagator must round-trip trace context.
	tracer := otel.Tracer("setup-test")
	ctx, span := tracer.Start(context.Background(), "carrier-roundtrip")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()
	if carrier.Get("traceparent") == "" {
		t.Fatal("propagator did not inject traceparent")
	}
	extracted := otel.GetTextMapPropagator().Extract(context.Background(), carrier)
	if !trace.SpanContextFromContext(extracted).IsValid() {
		t.Fatal("propagator did not extract a valid span context")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_ = shutdown(shutdownCtx)
}

func TestSetupOTel_SecureTLS_SetsProvider(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabledOTELConfig(false), "test")
	if err != nil {
		t.Fatalf("SetupOTel TLS: unexpected error %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("global tracer provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_ = shutdown(shutdownCtx)
}

func TestSetupOTel_CanceledContext_StillSucceeds(t *testing.T) {
	preserveOTelGlobals(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Setup does not dial; a canceled context must not fail construction.
	shutdown, err := SetupOTel(ctx, enabledOTELConfig(true), "test")
	if err != nil {
		t.Fatalf("SetupOTel with canceled context: unexpected error %v", err)
	}
	shutdownCtx, c2 := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer c2()
	_ = shutdown(shutdownCtx)
}

func TestSetupOTel_ExporterError_Propagates_AndGlobalsIntact(t *testing.T) {
	preserveOTelGlobals(t)

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()

	wantErr := errors.New("exporter unavailable")
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, wantErr
	}

	shutdown, err := SetupOTel(context.Background(), enabledOTELConfig(true), "test")
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if shutdown != nil {
		t.Fatal("failed setup must return a nil shutdown")
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatal("failed setup must not replace the global tracer provider")
	}
	if otel.GetTextMapPropagator() != prevProp {
		t.Fatal("failed setup must not replace the global propagator")
	}
}

func TestSetupOTel_ResourceError_Propagates_AndGlobalsIntact(t *testing.T) {
	preserveOTelGlobals(t)

	prevTP := otel.GetTracerProvider()

	wantErr := errors.New("resource detection failed")
	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return nil, wantErr
	}

	shutdown, err := SetupOTel(context.Background(), enabledOTELConfig(true), "test")
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if shutdown != nil {
		t.Fatal("failed setup must return a nil shutdown")
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatal("failed setup must not replace the global tracer provider")
	}
}

func TestShutdown_IsCallable(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabledOTELConfig(true), "test")
	if err != nil {
		t.Fatalf("SetupOTel: unexpected error %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("shutdown returned unexpected error %v", err)
	}
}

func TestSpanCreation_Smoke(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabledOTELConfig(true), "test")
	if err != nil {
		t.Fatalf("SetupOTel: unexpected error %v", err)
	}

	tracer := otel.Tracer("workflow")
	_, span := tracer.Start(context.Background(), "stage_one", trace.WithSpanKind(trace.SpanKindInternal))
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a recording span with a valid context")
	}
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
