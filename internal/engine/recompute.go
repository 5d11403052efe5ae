package engine

import (
	"context"
	"fmt"
	"log/slog"

	"uniMatch/internal/database"
	"uniMatch/internal/tasks"
)

// RecomputeForCandidate 在候选人的技能/证书/GPA/计分/专业变更后触发：
// 重算其名下全部申请的 predicted_fit。配置了队列则异步执行
// （fan-out 可能很大，不该阻塞用户请求），否则就地同步完成。
func (e *Engine) RecomputeForCandidate(ctx context.Context, userID uint, correlationID string) error {
	if e.queue == nil {
		_, err := e.RecomputeCandidateNow(ctx, userID)
		return err
	}

	task, err := tasks.NewFitRecomputeTask(tasks.SubjectCandidate, userID, correlationID)
	if err != nil {
		return fmt.Errorf("build recompute task: %w", err)
	}
	if _, err := e.queue.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue candidate recompute: %w", err)
	}
	return nil
}

// RecomputeForOffer 在岗位要求变更后触发，对称于候选人侧。
func (e *Engine) RecomputeForOffer(ctx context.Context, offerID uint, correlationID string) error {
	if e.queue == nil {
		_, err := e.RecomputeOfferNow(ctx, offerID)
		return err
	}

	task, err := tasks.NewFitRecomputeTask(tasks.SubjectOffer, offerID, correlationID)
	if err != nil {
		return fmt.Errorf("build recompute task: %w", err)
	}
	if _, err := e.queue.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue offer recompute: %w", err)
	}
	return nil
}

// RecomputeCandidateNow 同步重算候选人的全部申请，返回更新条数。
// 分块推进且不持有岗位锁；块间读到略旧的 fit 可接受（最终一致）。
func (e *Engine) RecomputeCandidateNow(ctx context.Context, userID uint) (int, error) {
	profile, err := e.loadProfile(ctx, userID)
	if err != nil {
		return 0, err
	}

	updated := 0
	lastID := uint(0)
	for {
		var apps []database.Application
		err := e.db.WithContext(ctx).
			Where("user_id = ? AND id > ?", userID, lastID).
			Order("id ASC").
			Limit(e.chunkSize).
			Find(&apps).Error
		if err != nil {
			return updated, fmt.Errorf("page applications for user %d: %w", userID, err)
		}
		if len(apps) == 0 {
			break
		}

		for _, app := range apps {
			offer, err := e.loadOffer(ctx, app.OfferID)
			if err != nil {
				return updated, err
			}
			fit, vec := e.scoreEntities(profile, offer)
			if err := e.persistFit(ctx, e.db, app.ID, fit, vec); err != nil {
				return updated, err
			}
			updated++
			lastID = app.ID
		}
	}

	e.logger.Info("candidate fit recomputed",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("applications", updated),
	)
	return updated, nil
}

// RecomputeOfferNow 同步重算岗位下全部申请，返回更新条数。
func (e *Engine) RecomputeOfferNow(ctx context.Context, offerID uint) (int, error) {
	offer, err := e.loadOffer(ctx, offerID)
	if err != nil {
		return 0, err
	}

	updated := 0
	lastID := uint(0)
	for {
		var apps []database.Application
		err := e.db.WithContext(ctx).
			Where("offer_id = ? AND id > ?", offerID, lastID).
			Order("id ASC").
			Limit(e.chunkSize).
			Find(&apps).Error
		if err != nil {
			return updated, fmt.Errorf("page applications for offer %d: %w", offerID, err)
		}
		if len(apps) == 0 {
			break
		}

		for _, app := range apps {
			profile, err := e.loadProfile(ctx, app.UserID)
			if err != nil {
				return updated, err
			}
			fit, vec := e.scoreEntities(profile, offer)
			if err := e.persistFit(ctx, e.db, app.ID, fit, vec); err != nil {
				return updated, err
			}
			updated++
			lastID = app.ID
		}
	}

	e.logger.Info("offer fit recomputed",
		slog.Uint64("offer_id", uint64(offerID)),
		slog.Int("applications", updated),
	)
	return updated, nil
}
