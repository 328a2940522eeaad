package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

// DefaultStreamingThreshold is the source byte size above which the ingestor
// switches to an incremental decode so memory stays bounded.
const DefaultStreamingThreshold = 5 * 1024 * 1024

// Result carries the validated recipients and the running counters that seed
// the campaign record. ValidLeads + RejectedLeads == TotalLeads always holds.
type Result struct {
	Recipients    []domain.Recipient
	TotalLeads    int
	ValidLeads    int
	RejectedLeads int
}

// Ingestor reads a recipient list from a source, validates and deduplicates
// each entry, and produces the recipient sequence for batching
type Ingestor struct {
	streamingThreshold int64
	logger             logger.Logger
}

// NewIngestor creates an ingestor. A non-positive threshold falls back to the
// default 5 MB.
func NewIngestor(streamingThreshold int64, log logger.Logger) *Ingestor {
	if streamingThreshold <= 0 {
		streamingThreshold = DefaultStreamingThreshold
	}
	return &Ingestor{
		streamingThreshold: streamingThreshold,
		logger:             log,
	}
}

// IngestLeads processes an in-memory lead list (the internal submission path).
// Invalid entries are counted as rejected and dropped, never surfaced to later
// stages.
func (i *Ingestor) IngestLeads(leads []domain.RawLead) *Result {
	startTime := time.Now()
	result := &Result{}
	seen := make(map[string]struct{}, len(leads))

	for _, lead := range leads {
		i.fold(result, seen, lead)
	}

	i.logger.WithFields(map[string]interface{}{
		"duration_ms": time.Since(startTime).Milliseconds(),
		"total":       result.TotalLeads,
		"valid":       result.ValidLeads,
		"rejected":    result.RejectedLeads,
	}).Info("Lead list ingested")

	return result
}

// IngestReader processes a JSON array of leads from a bounded source (file or
// cursor). If sizeHint exceeds the streaming threshold the document is decoded
// incrementally so memory stays bounded regardless of input size; otherwise the
// whole input is decoded at once. A malformed document returns an
// IngestionError and no partial result.
func (i *Ingestor) IngestReader(r io.Reader, sizeHint int64) (*Result, error) {
	if sizeHint > i.streamingThreshold {
		i.logger.WithFields(map[string]interface{}{
			"size_hint": sizeHint,
			"threshold": i.streamingThreshold,
		}).Info("Using streaming ingestion for large lead source")
		return i.ingestStreaming(r)
	}
	return i.ingestBuffered(r)
}

// ingestBuffered decodes the whole document at once
func (i *Ingestor) ingestBuffered(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &domain.IngestionError{Reason: "failed to read lead source", Err: err}
	}

	var leads []domain.RawLead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, &domain.IngestionError{Reason: "malformed lead source document", Err: err}
	}

	return i.IngestLeads(leads), nil
}

// ingestStreaming walks the JSON array token by token, decoding one lead at a
// time
func (i *Ingestor) ingestStreaming(r io.Reader) (*Result, error) {
	startTime := time.Now()
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, &domain.IngestionError{Reason: "malformed lead source document", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, &domain.IngestionError{
			Reason: fmt.Sprintf("lead source must be a JSON array, got %v", tok),
		}
	}

	result := &Result{}
	seen := make(map[string]struct{})

	for dec.More() {
		var lead domain.RawLead
		if err := dec.Decode(&lead); err != nil {
			return nil, &domain.IngestionError{Reason: "malformed lead entry", Err: err}
		}
		i.fold(result, seen, lead)
	}

	if _, err := dec.Token(); err != nil {
		return nil, &domain.IngestionError{Reason: "malformed lead source document", Err: err}
	}

	i.logger.WithFields(map[string]interface{}{
		"duration_ms": time.Since(startTime).Milliseconds(),
		"total":       result.TotalLeads,
		"valid":       result.ValidLeads,
		"rejected":    result.RejectedLeads,
	}).Info("Lead source streamed")

	return result, nil
}

// fold validates one raw lead into the result. Duplicates (case-insensitive by
// email) and invalid entries count as rejected.
func (i *Ingestor) fold(result *Result, seen map[string]struct{}, lead domain.RawLead) {
	result.TotalLeads++

	recipient, err := domain.NewRecipient(lead)
	if err != nil {
		result.RejectedLeads++
		i.logger.WithFields(map[string]interface{}{
			"email": lead.Email,
			"error": err.Error(),
		}).Debug("Lead rejected")
		return
	}

	if _, dup := seen[recipient.Email]; dup {
		result.RejectedLeads++
		return
	}
	seen[recipient.Email] = struct{}{}

	result.ValidLeads++
	result.Recipients = append(result.Recipients, recipient)
}
