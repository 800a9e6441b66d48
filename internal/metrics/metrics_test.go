package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAction(t *testing.T) {
	before := testutil.ToFloat64(actionTotal.WithLabelValues("hit", "success"))
	RecordAction("hit", "", time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(actionTotal.WithLabelValues("hit", "success")))
}

func TestRecordSettlement(t *testing.T) {
	paid := testutil.ToFloat64(chipsPaid)
	wins := testutil.ToFloat64(roundsSettled.WithLabelValues("win", "true"))

	RecordSettlement("win", true, 25)

	assert.Equal(t, paid+25, testutil.ToFloat64(chipsPaid))
	assert.Equal(t, wins+1, testutil.ToFloat64(roundsSettled.WithLabelValues("win", "true")))
}

func TestConnectionGauge(t *testing.T) {
	start := testutil.ToFloat64(activeConnections)
	ConnectionOpened()
	ConnectionOpened()
	ConnectionClosed()
	assert.Equal(t, start+1, testutil.ToFloat64(activeConnections))
}
