package proxy

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/airblackbox/gateway/internal/guardrails"
	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/vault"
)

type recordJob struct {
	runID      string
	span       trace.Span
	model      string
	provider   string
	endpoint   string
	reqBody    []byte
	respBody   []byte
	start      time.Time
	status     string
	statusCode int
	errMsg     string
	sessionID  string
}

// submitRecord hands the recording work to the pool. Recording never blocks
// or fails the response to the caller.
func (s *Service) submitRecord(job recordJob) {
	traceID := ""
	if sc := job.span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	run := func() { s.record(job, traceID) }

	if s.pool != nil {
		if err := s.pool.Submit(run); err == nil {
			return
		}
	}
	go run()
}

func (s *Service) record(job recordJob, traceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reqRef := s.vaultStore(ctx, job.runID, "request.json", job.reqBody)

	var respRef vault.Ref
	if job.respBody != nil {
		respRef = s.vaultStore(ctx, job.runID, "response.json", job.respBody)
	}

	tokens := extractTokens(job.respBody)
	if tokens.Total == 0 && job.respBody != nil {
		tokens = extractStreamTokens(job.respBody)
	}

	rec := recorder.Record{
		Version:          recorder.Version,
		RunID:            job.runID,
		TraceID:          traceID,
		Timestamp:        job.start.UTC(),
		Model:            job.model,
		Provider:         job.provider,
		Endpoint:         job.endpoint,
		RequestVaultRef:  reqRef.URI,
		ResponseVaultRef: respRef.URI,
		RequestChecksum:  reqRef.Checksum,
		ResponseChecksum: respRef.Checksum,
		Tokens:           tokens,
		DurationMS:       time.Since(job.start).Milliseconds(),
		Status:           job.status,
		Error:            job.errMsg,
	}

	if s.writer != nil {
		if err := s.writer.Write(rec); err != nil {
			s.log.Error("write run record failed",
				zap.String("run_id", job.runID), zap.Error(err))
		}
	}

	if s.index != nil {
		if err := s.index.Save(ctx, rec); err != nil {
			s.log.Error("index run record failed",
				zap.String("run_id", job.runID), zap.Error(err))
		}
	}

	if s.chain != nil {
		recordJSON, err := json.Marshal(rec)
		if err == nil {
			s.chain.Append(job.runID, recordJSON)
		}
	}

	if s.tracker != nil {
		errorType := ""
		if job.status != "success" {
			errorType = failureType(job)
		}
		s.tracker.RecordCall(job.model, rec.DurationMS,
			tokens.Prompt, tokens.Completion, tokens.Total, job.status, errorType)
	}
}

func (s *Service) vaultStore(ctx context.Context, runID, name string, data []byte) vault.Ref {
	if s.vault == nil || data == nil {
		return vault.Ref{}
	}
	ref, err := s.vault.Store(ctx, runID+"/"+name, data)
	if err != nil {
		s.log.Error("vault store failed",
			zap.String("run_id", runID),
			zap.String("object", name),
			zap.Error(err))
		return vault.Ref{}
	}
	return ref
}

func failureType(job recordJob) string {
	body := job.errMsg
	if body == "" {
		body = string(job.respBody)
	}
	return guardrails.ClassifyFailure(job.statusCode, body)
}
