package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"uniMatch/internal/engine"
	"uniMatch/internal/tasks"
)

// RecomputeTaskHandler 负责消费匹配分重算任务。
type RecomputeTaskHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewRecomputeTaskHandler 创建任务处理器。
func NewRecomputeTaskHandler(eng *engine.Engine, logger *slog.Logger) *RecomputeTaskHandler {
	return &RecomputeTaskHandler{
		engine: eng,
		logger: logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *RecomputeTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.FitRecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("subject", payload.Subject),
		slog.Uint64("subject_id", uint64(payload.ID)),
	)
	log.Info("Starting fit recompute task...")

	var (
		updated int
		err     error
	)
	switch payload.Subject {
	case tasks.SubjectCandidate:
		updated, err = h.engine.RecomputeCandidateNow(ctx, payload.ID)
	case tasks.SubjectOffer:
		updated, err = h.engine.RecomputeOfferNow(ctx, payload.ID)
	default:
		// 未知主体不可重试，直接丢弃并报警。
		log.Error("unknown recompute subject, dropping task")
		return fmt.Errorf("unknown recompute subject %q: %w", payload.Subject, asynq.SkipRetry)
	}

	if err != nil {
		// 主体已被删除：任务作废，不再重试。
		if errors.Is(err, engine.ErrProfileNotFound) || errors.Is(err, engine.ErrOfferNotFound) {
			log.Warn("recompute subject no longer exists, skipping task", slog.Any("error", err))
			return nil
		}
		log.Error("fit recompute failed", slog.Any("error", err))
		return err
	}

	log.Info("Fit recompute task completed successfully.", slog.Int("updated", updated))
	return nil
}
