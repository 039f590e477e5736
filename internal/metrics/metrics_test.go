package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRelayMetrics(t *testing.T) {
	InboundEvents.WithLabelValues("join-request").Inc()
	DroppedEvents.WithLabelValues(ReasonMalformed).Inc()
	OutboundDeliveries.WithLabelValues("join-accepted").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"collab_relay_open_connections",
		"collab_relay_joined_sessions",
		"collab_relay_active_rooms",
		`collab_relay_inbound_events_total{kind="join-request"}`,
		`collab_relay_dropped_events_total{reason="malformed"}`,
		`collab_relay_outbound_deliveries_total{kind="join-accepted"}`,
		"collab_relay_dropped_sends_total",
		"collab_relay_join_rejections_total",
		"collab_relay_dropped_activity_entries_total",
	} {
		assert.Contains(t, body, name)
	}
}
