package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clueless/internal/activity"
	"clueless/internal/ipc"
	"clueless/internal/report"
)

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		5 << 20: "5.0 MiB",
		3 << 30: "3.0 GiB",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatBytes(in))
	}
}

func TestPrintEventStopsOnShutdown(t *testing.T) {
	c = palette{}
	ev, err := ipc.NewEvent(ipc.EventDaemonShutdown, nil)
	require.NoError(t, err)
	assert.True(t, printEvent(ev))

	ev, err = ipc.NewEvent(ipc.EventDetection,
		activity.NewEvent(activity.TypeAIProcess, activity.SeverityMedium, time.Now(), nil))
	require.NoError(t, err)
	assert.False(t, printEvent(ev))
}

func TestValidateExport(t *testing.T) {
	r := report.Build(report.Input{Now: time.Now()})
	data, err := json.Marshal(map[string]any{"timestamp": time.Now(), "detectionReport": r})
	require.NoError(t, err)
	assert.NoError(t, validateExport(data))

	assert.Error(t, validateExport([]byte(`{"detectionReport":{"overallThreatLevel":"SEVERE"}}`)))
}
