package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOpSplitsByResult(t *testing.T) {
	okBefore := testutil.ToFloat64(LifecycleOps.WithLabelValues("star", ResultOK))
	errBefore := testutil.ToFloat64(LifecycleOps.WithLabelValues("star", ResultError))

	ObserveOp("star", nil)
	ObserveOp("star", errors.New("boom"))
	ObserveOp("star", nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(LifecycleOps.WithLabelValues("star", ResultOK)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(LifecycleOps.WithLabelValues("star", ResultError)))
}

func TestHandlerExposesNamespace(t *testing.T) {
	Deliveries.WithLabelValues("receiveMessage").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pairchat_fanout_deliveries_total"))
}
