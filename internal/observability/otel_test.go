package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tbourn/media-ratings-backend/internal/config"
	"github.com/tbourn/media-ratings-backend/internal/sysutil"
)

// ratingsOTEL mirrors the defaults config.Load produces with tracing on.
func ratingsOTEL(ratio float64) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "media-ratings-backend",
		SampleRatio: ratio,
	}
}

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	cfg := ratingsOTEL(1)
	cfg.Enabled = false
	shutdown, err := SetupOTel(context.Background(), cfg, sysutil.Version("v1.0.0"))
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled tracing replaced the tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

func TestSetupOTel_SpansCarryServiceResource(t *testing.T) {
	keepGlobals(t)
	t.Setenv("SERVICE_VERSION", "v2.3.0")

	shutdown, err := SetupOTel(context.Background(), ratingsOTEL(1), sysutil.Version(""))
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
	_, span := otel.Tracer("ratings").Start(context.Background(), "RatingService.Submit")
	defer span.End()

	ro, ok := span.(sdktrace.ReadOnlySpan)
	if !ok {
		t.Fatalf("span %T is not recording", span)
	}
	attrs := ro.Resource().Set()
	if v, _ := attrs.Value(semconv.ServiceNameKey); v.AsString() != "media-ratings-backend" {
		t.Fatalf("service.name = %q", v.AsString())
	}
	if v, _ := attrs.Value(semconv.ServiceVersionKey); v.AsString() != "v2.3.0" {
		t.Fatalf("service.version = %q", v.AsString())
	}
}

func TestSetupOTel_ZeroRatioDropsRootSpans(t *testing.T) {
	keepGlobals(t)

	shutdown, err := SetupOTel(context.Background(), ratingsOTEL(0), "v1")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("ratings").Start(context.Background(), "ChatService.Send")
	defer span.End()
	if span.IsRecording() {
		t.Fatalf("root span recorded with SampleRatio 0")
	}
}

func TestSetupOTel_FailuresWrapCauseAndKeepGlobals(t *testing.T) {
	origExp, origRes := newOTLPExporterFn, newServiceResourceFn
	t.Cleanup(func() { newOTLPExporterFn, newServiceResourceFn = origExp, origRes })

	errExporter := errors.New("collector unreachable")
	errResource := errors.New("host detector failed")

	cases := []struct {
		name   string
		setup  func()
		cause  error
		prefix string
	}{
		{
			name: "exporter",
			setup: func() {
				newServiceResourceFn = origRes
				newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
					return nil, errExporter
				}
			},
			cause:  errExporter,
			prefix: "otlp exporter:",
		},
		{
			name: "resource",
			setup: func() {
				newOTLPExporterFn = origExp
				newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
					return nil, errResource
				}
			},
			cause:  errResource,
			prefix: "otel resource:",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keepGlobals(t)
			tc.setup()
			before := otel.GetTracerProvider()

			_, err := SetupOTel(context.Background(), ratingsOTEL(1), "v1")
			if !errors.Is(err, tc.cause) {
				t.Fatalf("err = %v, want wrapping %v", err, tc.cause)
			}
			if !strings.HasPrefix(err.Error(), tc.prefix) {
				t.Fatalf("err = %q, want prefix %q", err, tc.prefix)
			}
			if otel.GetTracerProvider() != before {
				t.Fatalf("tracer provider changed on failure")
			}
		})
	}
}

func TestSampler_ClampsRatio(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{2, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		got := sampler(tc.ratio).Description()
		if !strings.Contains(got, tc.want) {
			t.Fatalf("sampler(%v) = %q, want it to mention %q", tc.ratio, got, tc.want)
		}
	}
}
