package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTrace_Stdout(t *testing.T) {
	shutdown, err := InitTrace(context.Background(), "gold-quotes-test", "0.0.1", StdoutEndpoint, 0.5)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()
	require.NoError(t, shutdown(context.Background()))
}
