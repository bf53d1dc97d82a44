package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"rearrange/search"
)

func TestObserver(t *testing.T) {
	var o Observer
	name := "observer-test"
	o.Step(name, search.Tuple{3, 1})
	o.Step(name, search.Tuple{2, 1})
	o.Step(name, nil)
	o.Restart(name)
	o.Done(name, search.Summary{Reason: search.Converged, Elapsed: 20 * time.Millisecond})

	assert.Equal(t, 3.0, testutil.ToFloat64(stepsTotal.WithLabelValues(name)))
	assert.Equal(t, 2.0, testutil.ToFloat64(bestValue.WithLabelValues(name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(restartsTotal.WithLabelValues(name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(searchesTotal.WithLabelValues(name, "converged")))
	assert.Zero(t, testutil.ToFloat64(searchesTotal.WithLabelValues(name, "timeout")))
}

func TestHandler(t *testing.T) {
	Observer{}.Restart("handler-test")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rearrange_search_restarts_total{problem="handler-test"} 1`)
}

func TestInitTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "rearrange-test", Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("rearrange/telemetry").Start(context.Background(), "telemetry.test")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "telemetry.test")
	assert.Contains(t, buf.String(), "rearrange-test")
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = InitTracing(ctx, TracingConfig{Writer: &bytes.Buffer{}})
	assert.ErrorIs(t, err, context.Canceled)
}
