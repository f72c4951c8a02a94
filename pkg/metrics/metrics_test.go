package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.Observe("Area", time.Millisecond, nil)
	c.Observe("Area", 2*time.Millisecond, nil)
	c.Observe("Buffer", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.calls.WithLabelValues("Area", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.calls.WithLabelValues("Buffer", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))

	t.Run("handler", func(t *testing.T) {
		srv := httptest.NewServer(c.Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), `geosql_function_calls_total{function="Area",status="ok"} 2`))
	})
}
