package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() (*logrus.Logger, *bytes.Buffer) {
	log := logrus.New()
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.DebugLevel)
	return log, buf
}

func parseLogOutput(buf *bytes.Buffer) map[string]interface{} {
	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	if err != nil {
		return nil
	}
	return logEntry
}

func TestNewLoggerLevels(t *testing.T) {
	log := NewLogger("debug")
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log = NewLogger("warn")
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	// Invalid levels fall back to info.
	log = NewLogger("nonsense")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewLoggerFormatter(t *testing.T) {
	log := NewLogger("info")
	_, isJSON := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	t.Setenv("STRATOPT_LOG_FORMAT", "text")
	log = NewLogger("info")
	_, isText := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestPipelineLoggerStageStart(t *testing.T) {
	log, buf := setupTestLogger()
	pipelineLogger := NewPipelineLogger(log)

	pipelineLogger.LogStageStart("run_001", "global_optimization", 120)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "run_001", logEntry["run_id"])
	assert.Equal(t, "global_optimization", logEntry["stage"])
	assert.Equal(t, "pipeline", logEntry["component"])
	assert.Equal(t, float64(120), logEntry["candidates_in"])
}

func TestPipelineLoggerStageComplete(t *testing.T) {
	log, buf := setupTestLogger()
	pipelineLogger := NewPipelineLogger(log)

	pipelineLogger.LogStageComplete("run_001", "local_refinement", 5, 1, 42*time.Second)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "local_refinement", logEntry["stage"])
	assert.Equal(t, float64(5), logEntry["candidates_out"])
	assert.Equal(t, float64(1), logEntry["retries"])
	assert.Equal(t, float64(42000), logEntry["duration_ms"])
}

func TestPipelineLoggerPromotion(t *testing.T) {
	log, buf := setupTestLogger()
	pipelineLogger := NewPipelineLogger(log)

	pipelineLogger.LogCandidatePromotion("run_001", "cand_abc", "walkforward_analysis", 1.85, 0.72)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "cand_abc", logEntry["candidate_id"])
	assert.Equal(t, 1.85, logEntry["score"])
	assert.Equal(t, 0.72, logEntry["robustness"])
}

func TestPipelineLoggerGateRejection(t *testing.T) {
	log, buf := setupTestLogger()
	pipelineLogger := NewPipelineLogger(log)

	pipelineLogger.LogGateRejection("run_001", "cand_abc", "walkforward_analysis", []string{"profit_factor", "consistency"})

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "warning", logEntry["level"])
	failures, ok := logEntry["failures"].([]interface{})
	require.True(t, ok)
	assert.Len(t, failures, 2)
}

func TestPipelineLoggerRunComplete(t *testing.T) {
	log, buf := setupTestLogger()
	pipelineLogger := NewPipelineLogger(log)

	pipelineLogger.LogRunComplete("run_001", 2, false, 10*time.Minute)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, float64(2), logEntry["recommended"])
	assert.Equal(t, false, logEntry["degraded"])
}
