package observability

import (
	"testing"
	"time"

	"github.com/danmuck/verse/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	logger := testlog.New(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordEvent("connect", "runtime")
	RecordConnectAccepted()
	SetActiveConnections(2)
	SetLiveNodes(5)
	RecordHTTPRequest("admin", "GET", "/health", 200, 12*time.Millisecond)

	logger.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestConnectRejectionsAreLabelledByReason(t *testing.T) {
	testlog.Start(t)
	c := connectRequests.WithLabelValues("rejected", "hostid_mismatch")
	before := testutil.ToFloat64(c)
	RecordConnectRejected("hostid_mismatch")
	RecordConnectRejected("hostid_mismatch")
	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Fatalf("expected 2 rejections, got %v", got)
	}
	SetActiveConnections(3)
	if got := testutil.ToFloat64(activeConnections); got != 3 {
		t.Fatalf("unexpected active connections %v", got)
	}
}

func TestRecordIndexReplayAccumulates(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(indexReplays)
	RecordIndexReplay(4)
	RecordIndexReplay(0)
	if got := testutil.ToFloat64(indexReplays) - before; got != 4 {
		t.Fatalf("expected 4 replays, got %v", got)
	}
}
