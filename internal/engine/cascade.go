package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"uniMatch/internal/database"
	"uniMatch/internal/metrics"
)

// CascadeResult 汇报一次诚信级联的全部动作。
// SeatsLost > 0 表示合格替补不足、部分席位只能空缺——这是合法结果，
// 必须明确上报而不是悄悄少补。
type CascadeResult struct {
	ApplicationID uint   `json:"application_id"`
	OfferID       uint   `json:"offer_id"`
	CandidateID   uint   `json:"candidate_id"`
	Flagged       bool   `json:"flagged"`
	Demoted       []uint `json:"demoted,omitempty"`
	Promoted      []uint `json:"promoted,omitempty"`
	SeatsLost     int    `json:"seats_lost"`
}

// OnNegativeFeedback 是诚信级联的入口：一条 negative 反馈落库后，
// CRUD 层同步调用这里。整个 读F → 降级 → 选替补 → 升级 序列
// 持有岗位锁并在单事务内执行，两个并发的欺诈信号绝不会互相穿插。
//
// 状态机：pending → accepted（升级）、accepted → rejected（仅欺诈降级）、
// rejected 为终态。席位守恒：升级数等于降级数，除非替补不足。
func (e *Engine) OnNegativeFeedback(ctx context.Context, applicationID uint) (*CascadeResult, error) {
	app, err := e.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	release, err := e.locker.Lock(ctx, app.OfferID)
	if err != nil {
		metrics.ObserveCascadeRun("busy")
		return nil, err
	}
	defer release()

	result := &CascadeResult{
		ApplicationID: app.ID,
		OfferID:       app.OfferID,
		CandidateID:   app.UserID,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁内重读，拿到被其他级联改过之后的最新状态。
		var flagged database.Application
		if err := tx.First(&flagged, applicationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: application %d", ErrApplicationNotFound, applicationID)
			}
			return err
		}

		if !flagged.IsFake {
			if err := tx.Model(&flagged).UpdateColumn("is_fake", true).Error; err != nil {
				return fmt.Errorf("flag application %d: %w", applicationID, err)
			}
			if err := e.applyFraudPenalty(tx, flagged.UserID, flagged.ID); err != nil {
				return err
			}
			result.Flagged = true
		}

		// F：该岗位下已录取且已标记造假的申请。之前的级联若被
		// 多个欺诈事件追着跑，这里可能一次拿到多条。
		var fakes []database.Application
		if err := tx.Where("offer_id = ? AND status = ? AND is_fake = ?",
			flagged.OfferID, database.ApplicationAccepted, true).
			Find(&fakes).Error; err != nil {
			return fmt.Errorf("collect fake accepted applications: %w", err)
		}
		if len(fakes) == 0 {
			// 被举报的申请不在录取席位上：标记与扣分已完成，无席位可换。
			return nil
		}

		for _, f := range fakes {
			if err := tx.Model(&database.Application{}).
				Where("id = ?", f.ID).
				UpdateColumn("status", database.ApplicationRejected).Error; err != nil {
				return fmt.Errorf("demote application %d: %w", f.ID, err)
			}
			result.Demoted = append(result.Demoted, f.ID)
		}

		// 按排名顺序选前 |F| 个合格替补（pending 且未标记造假）。
		var replacements []database.Application
		if err := tx.Where("offer_id = ? AND status = ? AND is_fake = ?",
			flagged.OfferID, database.ApplicationPending, false).
			Order(rankOrder).
			Limit(len(fakes)).
			Find(&replacements).Error; err != nil {
			return fmt.Errorf("select replacement candidates: %w", err)
		}

		for _, r := range replacements {
			if err := tx.Model(&database.Application{}).
				Where("id = ?", r.ID).
				UpdateColumn("status", database.ApplicationAccepted).Error; err != nil {
				return fmt.Errorf("promote application %d: %w", r.ID, err)
			}
			result.Promoted = append(result.Promoted, r.ID)
		}

		result.SeatsLost = len(fakes) - len(replacements)
		return nil
	})
	if err != nil {
		metrics.ObserveCascadeRun("failed")
		return nil, err
	}

	metrics.ObserveCascadeRun("completed")
	metrics.ObserveCascadeSeatsLost(result.SeatsLost)

	log := e.logger.With(
		slog.Uint64("offer_id", uint64(result.OfferID)),
		slog.Uint64("application_id", uint64(result.ApplicationID)),
	)
	log.Info("integrity cascade completed",
		slog.Int("demoted", len(result.Demoted)),
		slog.Int("promoted", len(result.Promoted)),
	)
	if result.SeatsLost > 0 {
		log.Warn("cascade under-filled: not enough eligible pending candidates",
			slog.Int("seats_lost", result.SeatsLost),
		)
	}
	return result, nil
}
