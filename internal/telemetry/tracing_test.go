package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	tracer, shutdown, err := Setup(context.Background(), "  ", "test")
	if err != nil {
		t.Fatal(err)
	}
	_, span := tracer.Start(context.Background(), "x")
	if span.SpanContext().IsValid() {
		t.Fatal("expected a no-op span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestInstallExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tracer, shutdown, err := install(exp, "test")
	if err != nil {
		t.Fatal(err)
	}
	_, span := tracer.Start(context.Background(), "prior_art.search")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "prior_art.search" {
		t.Fatalf("unexpected spans %+v", spans)
	}
}
