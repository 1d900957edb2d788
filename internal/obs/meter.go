package obs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterSetup holds the meter provider for the process.
type MeterSetup struct {
	meterProvider *sdkmetric.MeterProvider
}

// NewMeterSetup installs a global meter provider exporting to stdout at the
// given interval. Returns nil when disabled; metric calls then no-op through
// the default provider.
func NewMeterSetup(enabled bool, interval time.Duration) (*MeterSetup, error) {
	if !enabled {
		return nil, nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(meterProvider)

	return &MeterSetup{meterProvider: meterProvider}, nil
}

// Shutdown flushes and stops the meter provider.
func (ms *MeterSetup) Shutdown(ctx context.Context) error {
	if ms == nil || ms.meterProvider == nil {
		return nil
	}
	return ms.meterProvider.Shutdown(ctx)
}
