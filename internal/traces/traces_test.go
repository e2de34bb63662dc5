package traces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupOTelSDK_InstallsProvider(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:1")
	ctx := context.Background()

	shutdown, err := SetupOTelSDK(ctx, "economy-test")
	require.NoError(t, err)

	_, span := otel.Tracer("economy.test").Start(ctx, "probe")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	_ = shutdown(ctx)
	assert.NoError(t, shutdown(ctx))
}

func TestNewResource_ServiceName(t *testing.T) {
	res, err := newResource("economy-test")
	require.NoError(t, err)
	value, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "economy-test", value.AsString())
}
