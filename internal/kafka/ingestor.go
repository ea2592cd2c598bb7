package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/score-tracker/internal/auth"
	"github.com/score-tracker/internal/domain"
)

// Ingestor records submitted scores under the ingestion service session
type Ingestor struct {
	recorder   ScoreRecorder
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger
}

// IngestResult counts the outcome of one batch
type IngestResult struct {
	Recorded int
	Failed   int
}

// NewIngestor creates an ingestor making up to attempts tries per score
func NewIngestor(recorder ScoreRecorder, attempts int, retryDelay time.Duration, logger *slog.Logger) *Ingestor {
	if attempts < 1 {
		attempts = 1
	}
	return &Ingestor{
		recorder:   recorder,
		attempts:   attempts,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Ingest records every submission of batch in order
func (i *Ingestor) Ingest(ctx context.Context, batch []domain.ScoreSubmission) IngestResult {
	ctx = auth.WithSession(ctx, auth.ServiceSession(ServiceName))

	var result IngestResult
	for _, sub := range batch {
		if err := i.record(ctx, sub); err != nil {
			result.Failed++
			i.logger.Error("failed to record score",
				"game_id", sub.GameID,
				"player_id", sub.PlayerID,
				"error", err,
			)
			continue
		}
		result.Recorded++
	}

	i.logger.Debug("processed batch", "batch_size", len(batch), "recorded", result.Recorded, "failed", result.Failed)
	return result
}

func (i *Ingestor) record(ctx context.Context, sub domain.ScoreSubmission) error {
	var err error
	for attempt := 1; attempt <= i.attempts; attempt++ {
		_, err = i.recorder.AddScore(ctx, sub.GameID, sub.PlayerID, sub.Value)
		if err == nil || !retryable(err) || attempt == i.attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.retryDelay):
		}
	}
	return err
}

// retryable reports whether a later attempt could succeed
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrAuthRequired),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrNotFound):
		return false
	}
	return errors.Is(err, domain.ErrStore)
}
