package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"uniMatch/internal/database"
	"uniMatch/internal/metrics"
)

// BonusTable 定义按名次发放的积分表。
// 历史上系统里同时存在两张表，语义相同却数值不同；这里收敛为
// 一张可配置的表，两个预设都保留，由部署方显式二选一。
type BonusTable struct {
	Name          string
	points        map[int]int
	defaultPoints int
}

// Points 返回名次对应的积分。
func (t BonusTable) Points(rank int) int {
	if p, ok := t.points[rank]; ok {
		return p
	}
	return t.defaultPoints
}

// ClassicBonusTable 是岗位关闭路径沿用的表（默认预设）。
var ClassicBonusTable = BonusTable{
	Name:   "classic",
	points: map[int]int{1: 15, 2: 13, 3: 11, 4: 9, 5: 7, 6: 5, 7: 4, 8: 3, 9: 2, 10: 1},
}

// LegacyBonusTable 是早期批量发放例程用的表，保留为可选预设。
var LegacyBonusTable = BonusTable{
	Name:          "legacy",
	points:        map[int]int{1: 100, 2: 70, 3: 50, 4: 20, 5: 20, 6: 20, 7: 20, 8: 20, 9: 20, 10: 20},
	defaultPoints: 5,
}

// BonusTableByName 按配置名解析预设。
func BonusTableByName(name string) (BonusTable, error) {
	switch name {
	case "", "classic":
		return ClassicBonusTable, nil
	case "legacy":
		return LegacyBonusTable, nil
	default:
		return BonusTable{}, fmt.Errorf("unknown bonus table preset %q", name)
	}
}

// awardTopCount 关闭奖励覆盖的名次数。
const awardTopCount = 10

// Award 单笔奖励记录。
type Award struct {
	Rank        int  `json:"rank"`
	CandidateID uint `json:"candidate_id"`
	Points      int  `json:"points"`
}

// AwardResult 一次关闭奖励发放的汇总。
type AwardResult struct {
	OfferID uint    `json:"offer_id"`
	Awards  []Award `json:"awards"`
}

// CloseOffer 关闭岗位并发放名次奖励。整个动作持有岗位锁并在
// 单事务内完成；BonusDistributedAt 守卫加上流水幂等键保证
// 严格一次发放——重复关闭返回 ErrBonusAlreadyDistributed，不动账。
func (e *Engine) CloseOffer(ctx context.Context, offerID uint) (*AwardResult, error) {
	release, err := e.locker.Lock(ctx, offerID)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &AwardResult{OfferID: offerID}
	now := e.now()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offer database.Offer
		if err := tx.First(&offer, offerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: offer %d", ErrOfferNotFound, offerID)
			}
			return err
		}
		if offer.BonusDistributedAt != nil {
			return fmt.Errorf("%w: offer %d", ErrBonusAlreadyDistributed, offerID)
		}

		top, err := topN(tx, offerID, awardTopCount)
		if err != nil {
			return err
		}

		for i, app := range top {
			rank := i + 1
			// 已录取或已标记造假的候选人不参与名次奖励，名次位置保留。
			if app.Status == database.ApplicationAccepted || app.IsFake {
				continue
			}
			points := e.bonusTable.Points(rank)
			if points <= 0 {
				continue
			}

			eventKey := fmt.Sprintf("offer-close:%d:rank:%d", offerID, rank)
			reason := fmt.Sprintf("Top %d in offer %s (bonus)", rank, offer.Title)
			if err := adjustScore(tx, app.UserID, points, reason, eventKey); err != nil {
				return err
			}
			result.Awards = append(result.Awards, Award{Rank: rank, CandidateID: app.UserID, Points: points})
		}

		updates := map[string]any{
			"is_closed":            true,
			"closed_at":            now,
			"bonus_distributed_at": now,
		}
		return tx.Model(&offer).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveBonusAwards(len(result.Awards))
	e.logger.Info("offer closed, rank bonuses distributed",
		slog.Uint64("offer_id", uint64(offerID)),
		slog.String("bonus_table", e.bonusTable.Name),
		slog.Int("awards", len(result.Awards)),
	)
	return result, nil
}

// ReopenOffer 重新开放岗位。奖励守卫不重置：重开再关不会二次发奖。
func (e *Engine) ReopenOffer(ctx context.Context, offerID uint) error {
	res := e.db.WithContext(ctx).Model(&database.Offer{}).
		Where("id = ?", offerID).
		Updates(map[string]any{"is_closed": false, "closed_at": nil})
	if res.Error != nil {
		return fmt.Errorf("reopen offer %d: %w", offerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: offer %d", ErrOfferNotFound, offerID)
	}
	return nil
}

// adjustScore 在同一事务内追加积分流水并同步画像计分缓存。
// 流水是唯一事实来源；幂等键冲突说明该事件已入账，直接跳过。
// 冲突用 ON CONFLICT DO NOTHING 吸收而不是捕获唯一约束错误：
// postgres 上唯一约束违例会让整个事务进入 aborted 状态，
// 捕获后继续执行只会连环失败。
func adjustScore(tx *gorm.DB, userID uint, points int, reason, eventKey string) error {
	entry := database.ScoreEntry{
		UserID:   userID,
		Points:   points,
		Reason:   reason,
		EventKey: eventKey,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_key"}},
		DoNothing: true,
	}).Create(&entry)
	if res.Error != nil {
		return fmt.Errorf("append score entry %q: %w", eventKey, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if err := tx.Model(&database.Profile{}).
		Where("user_id = ?", userID).
		UpdateColumn("score", gorm.Expr("score + ?", points)).Error; err != nil {
		return fmt.Errorf("update cached score for user %d: %w", userID, err)
	}
	return nil
}

// applyFraudPenalty 扣减造假处罚分。画像计分下限为 0，
// 流水记录的是实际生效的扣减额，保证账实一致。
func (e *Engine) applyFraudPenalty(tx *gorm.DB, userID uint, appID uint) error {
	var profile database.Profile
	if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d", ErrProfileNotFound, userID)
		}
		return err
	}

	applied := e.fraudPenalty
	if profile.Score < applied {
		applied = profile.Score
	}

	eventKey := fmt.Sprintf("fraud-penalty:app:%d", appID)
	return adjustScore(tx, userID, -applied, "Fake profile or skills detected", eventKey)
}

// ScoreHistory 返回候选人的积分流水（新在前）。
func (e *Engine) ScoreHistory(ctx context.Context, userID uint) ([]database.ScoreEntry, error) {
	var entries []database.ScoreEntry
	err := e.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list score entries for user %d: %w", userID, err)
	}
	return entries, nil
}

// ReconcileReport 是一次计分对账的结果。
type ReconcileReport struct {
	UserID      uint      `json:"user_id"`
	CachedScore int       `json:"cached_score"`
	LedgerSum   int       `json:"ledger_sum"`
	Drift       int       `json:"drift"`
	Repaired    bool      `json:"repaired"`
	CheckedAt   time.Time `json:"checked_at"`
}

// ReconcileScore 用流水和校验画像计分缓存，repair 为真时回写修正。
// 画像分与流水之和理论上恒等；出现漂移说明有绕过 ledger 的写入。
func (e *Engine) ReconcileScore(ctx context.Context, userID uint, repair bool) (*ReconcileReport, error) {
	report := &ReconcileReport{UserID: userID, CheckedAt: e.now()}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile database.Profile
		if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", ErrProfileNotFound, userID)
			}
			return err
		}

		var sum *int
		if err := tx.Model(&database.ScoreEntry{}).
			Where("user_id = ?", userID).
			Select("SUM(points)").Scan(&sum).Error; err != nil {
			return fmt.Errorf("sum score entries for user %d: %w", userID, err)
		}

		report.CachedScore = profile.Score
		if sum != nil {
			report.LedgerSum = *sum
		}
		report.Drift = report.CachedScore - report.LedgerSum

		if repair && report.Drift != 0 {
			if err := tx.Model(&profile).UpdateColumn("score", report.LedgerSum).Error; err != nil {
				return fmt.Errorf("repair cached score for user %d: %w", userID, err)
			}
			report.Repaired = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Drift != 0 {
		e.logger.Warn("score ledger drift detected",
			slog.Uint64("user_id", uint64(userID)),
			slog.Int("cached", report.CachedScore),
			slog.Int("ledger_sum", report.LedgerSum),
			slog.Bool("repaired", report.Repaired),
		)
	}
	return report, nil
}
