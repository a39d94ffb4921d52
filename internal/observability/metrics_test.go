package observability

import (
	"testing"
	"time"

	"github.com/danmuck/techread/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("techread-dev", "GET", "/health", 200, 12*time.Millisecond)
	RecordTransfer("upload", 200, 24*time.Millisecond, true)
	RecordSessionOpen("ok")
	RecordMessage("PROGRESS", "STARTED")

	before := testutil.ToFloat64(untrustedPayloads)
	RecordUntrustedPayload()
	if got := testutil.ToFloat64(untrustedPayloads); got != before+1 {
		t.Fatalf("untrusted payload counter=%v want %v", got, before+1)
	}
	if got := testutil.ToFloat64(messagesReceived.WithLabelValues("PROGRESS", "STARTED")); got < 1 {
		t.Fatalf("message counter not recorded: %v", got)
	}
}
