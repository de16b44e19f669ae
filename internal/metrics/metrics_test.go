package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, itemsTotal)
	require.NotNil(t, writeRetriesTotal)
}

func TestObserversDoNotPanic(t *testing.T) {
	ObserveItem("ready")
	ObserveItem("no_pdf")
	ObserveWriteRetry()
	ObserveWriteFailure()
	WorkerStarted()
	WorkerDone()
	ObserveFetchDuration(250 * time.Millisecond)
	ObserveBatch()
}

func TestHandlerServesMetrics(t *testing.T) {
	ObserveItem("ready")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "enricher_items_total")
}
