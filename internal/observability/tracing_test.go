package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"
)

func TestSetup_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{ServiceName: "econtract-test", Writer: &buf}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), `"Name":"op"`)
	require.Contains(t, buf.String(), "econtract-test")
}

func TestRatio(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1.0, ratio(0))
	require.Equal(t, 1.0, ratio(3))
	require.Equal(t, 0.25, ratio(0.25))
}
