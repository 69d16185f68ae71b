package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(Options{ServiceName: "paygw-test", Writer: &buf, Syncer: true})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "processor.purchase")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"Name":"processor.purchase"`)
	assert.Contains(t, out, "paygw-test")
}

func TestInitTracer_ShutdownIsIdempotent(t *testing.T) {
	shutdown, err := InitTracer(Options{ServiceName: "paygw-test", Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}
