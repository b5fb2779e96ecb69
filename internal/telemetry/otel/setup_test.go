package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Config{Endpoint: endpoint, ServiceName: "test-service"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatalf("NewProviders(%q) returned nil providers", endpoint)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
	}
}

func TestNewProviders_MissingHost(t *testing.T) {
	if _, err := NewProviders(context.Background(), Config{Endpoint: "http://", ServiceName: "x"}); err == nil {
		t.Fatal("NewProviders with missing host should return error")
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint     string
		override     bool
		wantTarget   string
		wantInsecure bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://collector:4317", false, "collector:4317", true},
		{"https://collector:4317/v1/traces", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
	}
	for _, tt := range tests {
		target, insecure, err := parseEndpoint(tt.endpoint, tt.override)
		if err != nil {
			t.Errorf("parseEndpoint(%q): %v", tt.endpoint, err)
			continue
		}
		if target != tt.wantTarget || insecure != tt.wantInsecure {
			t.Errorf("parseEndpoint(%q) = %q, %v; want %q, %v", tt.endpoint, target, insecure, tt.wantTarget, tt.wantInsecure)
		}
	}
	if _, _, err := parseEndpoint("http://", false); err == nil {
		t.Error("parseEndpoint without host should fail")
	}
}

func TestSetGlobal(t *testing.T) {
	providers, err := NewProviders(context.Background(), Config{ServiceName: "test-service"})
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
	var nilProviders *Providers
	nilProviders.SetGlobal()
}
