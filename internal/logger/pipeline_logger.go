// Package logger provides pipeline-specific logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// PipelineLogger provides dedicated logging for pipeline runs.
type PipelineLogger struct {
	*logrus.Entry
}

// NewPipelineLogger creates a new pipeline logger.
func NewPipelineLogger(baseLogger *logrus.Logger) *PipelineLogger {
	return &PipelineLogger{
		Entry: baseLogger.WithField("component", "pipeline"),
	}
}

// LogStageStart logs the start of a pipeline stage.
func (pl *PipelineLogger) LogStageStart(runID, stage string, candidatesIn int) {
	pl.WithFields(logrus.Fields{
		"run_id":        runID,
		"stage":         stage,
		"candidates_in": candidatesIn,
	}).Info("Pipeline stage started")
}

// LogStageComplete logs a completed pipeline stage.
func (pl *PipelineLogger) LogStageComplete(runID, stage string, candidatesOut, retries int, duration time.Duration) {
	pl.WithFields(logrus.Fields{
		"run_id":         runID,
		"stage":          stage,
		"candidates_out": candidatesOut,
		"retries":        retries,
		"duration_ms":    duration.Milliseconds(),
	}).Info("Pipeline stage completed")
}

// LogCandidatePromotion logs a candidate surviving a validation gate.
func (pl *PipelineLogger) LogCandidatePromotion(runID, candidateID, stage string, score, robustness float64) {
	pl.WithFields(logrus.Fields{
		"run_id":       runID,
		"candidate_id": candidateID,
		"stage":        stage,
		"score":        score,
		"robustness":   robustness,
	}).Info("Candidate promoted")
}

// LogGateRejection logs a candidate failing a validation gate.
func (pl *PipelineLogger) LogGateRejection(runID, candidateID, stage string, failures []string) {
	pl.WithFields(logrus.Fields{
		"run_id":       runID,
		"candidate_id": candidateID,
		"stage":        stage,
		"failures":     failures,
	}).Warn("Candidate rejected by gate")
}

// LogRunComplete logs a terminal pipeline run.
func (pl *PipelineLogger) LogRunComplete(runID string, recommended int, degraded bool, duration time.Duration) {
	pl.WithFields(logrus.Fields{
		"run_id":      runID,
		"recommended": recommended,
		"degraded":    degraded,
		"duration_ms": duration.Milliseconds(),
	}).Info("Pipeline run completed")
}
