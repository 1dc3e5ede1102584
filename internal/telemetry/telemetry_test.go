package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_Disabled_ReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.False(t, IsEnabled())
}

func TestStartSpan_WithoutInit_DoesNotPanic(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()

	AddEvent(ctx, "something happened")
	RecordError(ctx, errors.New("boom"))
	SetAttributes(ctx)

	require.Equal(t, "", TraceID(ctx))
	require.Equal(t, "", SpanID(ctx))
}
