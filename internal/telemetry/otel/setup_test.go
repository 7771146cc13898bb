package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestNewProviders_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "onego-test"}, nil)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatalf("NewProviders(%q): providers should be non-nil no-ops", endpoint)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("no-op shutdown: %v", err)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		target  string
		tls     bool
		wantErr bool
	}{
		{in: "localhost:4317", target: "localhost:4317"},
		{in: "http://otel:4317", target: "otel:4317"},
		{in: "https://collector.example.com:4317/v1/traces", target: "collector.example.com:4317", tls: true},
		{in: "http://[invalid", wantErr: true},
		{in: "http://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			target, useTLS, err := parseEndpoint(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseEndpoint(%q) should fail", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint(%q): %v", tt.in, err)
			}
			if target != tt.target || useTLS != tt.tls {
				t.Errorf("parseEndpoint(%q) = %q, %v; want %q, %v", tt.in, target, useTLS, tt.target, tt.tls)
			}
		})
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), Options{Endpoint: "http://"}, zap.NewNop()); err == nil {
		t.Error("NewProviders should reject an endpoint without host")
	}
}

func TestNewProviders_Exporters(t *testing.T) {
	// OTLP gRPC exporters connect lazily, so construction succeeds without a collector.
	providers, err := NewProviders(context.Background(), Options{
		Endpoint:    "localhost:4317",
		ServiceName: "onego-test",
		Environment: "test",
		Insecure:    true,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if len(providers.shutdown) != 3 {
		t.Errorf("started %d providers, want 3", len(providers.shutdown))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = providers.Shutdown(ctx)
	if providers.shutdown != nil {
		t.Error("Shutdown should forget stopped providers")
	}
}

func TestSetGlobal(t *testing.T) {
	oldTP, oldMP, oldProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	defer func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
		otel.SetTextMapPropagator(oldProp)
	}()

	providers, err := NewProviders(context.Background(), Options{ServiceName: "onego-test"}, nil)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	providers.SetGlobal()
	if otel.GetTracerProvider() != providers.TracerProvider {
		t.Error("global TracerProvider not set")
	}
	if otel.GetMeterProvider() != providers.MeterProvider {
		t.Error("global MeterProvider not set")
	}
	fields := otel.GetTextMapPropagator().Fields()
	if len(fields) < 2 {
		t.Errorf("propagator fields = %v, want traceparent and baggage", fields)
	}
}
