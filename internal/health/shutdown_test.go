package health_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/matomart-api/internal/health"
)

func TestDrainingFailsReadinessButNotLiveness(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	handler := health.Handler{Checks: []health.Check{{Name: "db", Probe: ok}}}

	code, _ := ready(t, handler)
	require.Equal(t, http.StatusOK, code)

	health.SetReady(false)
	code, status := ready(t, handler)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "draining", status["server"])
	require.Equal(t, "ok", status["db"], "probes still run while draining")
}
