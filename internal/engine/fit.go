package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"uniMatch/internal/database"
	"uniMatch/internal/metrics"
)

// Engine 是匹配评分、排名、积分与诚信级联的唯一入口。
// 纯计算部分（特征提取 → 模型 → 规则）无副作用，可跨 (候选人, 岗位)
// 并行；写路径以岗位/候选人为粒度串行化。
type Engine struct {
	db     *gorm.DB
	scorer BaseScorer
	queue  *asynq.Client
	locker OfferLocker
	logger *slog.Logger

	bonusTable   BonusTable
	fraudPenalty int
	chunkSize    int
	now          func() time.Time
}

// Options 汇集 Engine 的可选依赖与调参项。零值均有合理默认。
type Options struct {
	// Queue 非空时重算请求走 asynq 异步执行，否则同步完成。
	Queue *asynq.Client
	// Locker 缺省为进程内锁；多副本部署必须注入 Redis 锁。
	Locker OfferLocker
	Logger *slog.Logger

	BonusTable         BonusTable
	FraudPenaltyPoints int
	RecomputeChunkSize int

	// Now 仅测试注入。
	Now func() time.Time
}

// New 构造引擎。scorer 由 NewScorerFromConfig 提供，加载失败时
// 进程应当直接退出，而不是带着坏模型运行。
func New(db *gorm.DB, scorer BaseScorer, opts Options) *Engine {
	if opts.Locker == nil {
		opts.Locker = NewLocalOfferLocker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BonusTable.points == nil {
		opts.BonusTable = ClassicBonusTable
	}
	if opts.FraudPenaltyPoints <= 0 {
		opts.FraudPenaltyPoints = 10
	}
	if opts.RecomputeChunkSize <= 0 {
		opts.RecomputeChunkSize = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		db:           db,
		scorer:       scorer,
		queue:        opts.Queue,
		locker:       opts.Locker,
		logger:       opts.Logger,
		bonusTable:   opts.BonusTable,
		fraudPenalty: opts.FraudPenaltyPoints,
		chunkSize:    opts.RecomputeChunkSize,
		now:          opts.Now,
	}
}

// Score 计算候选人与岗位的匹配分。幂等：输入数据不变则输出一致。
func (e *Engine) Score(ctx context.Context, userID, offerID uint) (float64, error) {
	profile, err := e.loadProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	offer, err := e.loadOffer(ctx, offerID)
	if err != nil {
		return 0, err
	}

	fit, _ := e.scoreEntities(profile, offer)
	return fit, nil
}

// ScoreApplication 为一条申请评分并返回所用特征向量。
func (e *Engine) ScoreApplication(ctx context.Context, app *database.Application) (float64, Vector, error) {
	profile, err := e.loadProfile(ctx, app.UserID)
	if err != nil {
		return 0, Vector{}, err
	}
	offer, err := e.loadOffer(ctx, app.OfferID)
	if err != nil {
		return 0, Vector{}, err
	}
	fit, vec := e.scoreEntities(profile, offer)
	return fit, vec, nil
}

// scoreEntities 组合 特征提取 → 基础概率 → 规则修正。
func (e *Engine) scoreEntities(profile *database.Profile, offer *database.Offer) (float64, Vector) {
	vec := ExtractFeatures(profile, offer, e.now())
	base := e.scorer.Predict(vec)
	fit := ApplyRules(vec, base)
	metrics.ObserveFitComputation()
	return fit, vec
}

// persistFit 落库 predicted_fit 与特征快照。
func (e *Engine) persistFit(ctx context.Context, tx *gorm.DB, appID uint, fit float64, vec Vector) error {
	snapshot, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal feature snapshot: %w", err)
	}
	updates := map[string]any{
		"predicted_fit":    fit,
		"feature_snapshot": snapshot,
	}
	if err := tx.WithContext(ctx).Model(&database.Application{}).
		Where("id = ?", appID).Updates(updates).Error; err != nil {
		return fmt.Errorf("persist predicted fit: %w", err)
	}
	return nil
}

func (e *Engine) loadProfile(ctx context.Context, userID uint) (*database.Profile, error) {
	var profile database.Profile
	err := e.db.WithContext(ctx).
		Preload("Skills").
		Preload("Certifications.Skills").
		Preload("University").
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrProfileNotFound, userID)
		}
		return nil, fmt.Errorf("load profile for user %d: %w", userID, err)
	}
	return &profile, nil
}

func (e *Engine) loadOffer(ctx context.Context, offerID uint) (*database.Offer, error) {
	var offer database.Offer
	err := e.db.WithContext(ctx).
		Preload("RequiredSkills").
		First(&offer, offerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: offer %d", ErrOfferNotFound, offerID)
		}
		return nil, fmt.Errorf("load offer %d: %w", offerID, err)
	}
	return &offer, nil
}

func (e *Engine) loadApplication(ctx context.Context, appID uint) (*database.Application, error) {
	var app database.Application
	err := e.db.WithContext(ctx).First(&app, appID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: application %d", ErrApplicationNotFound, appID)
		}
		return nil, fmt.Errorf("load application %d: %w", appID, err)
	}
	return &app, nil
}

// Apply 处理一次投递：校验岗位开放与截止日期，计算匹配分并
// 以 (user, offer) 唯一约束做 upsert。新岗位只在投递时评分，
// 不会回头重算其他候选人。
//
// 重复投递只刷新 predicted_fit 与特征快照，绝不改写状态：
// rejected 是终态，不存在离开它的迁移；accepted 的席位
// 也不会因为重投而退回 pending。
func (e *Engine) Apply(ctx context.Context, userID, offerID uint) (*database.Application, error) {
	offer, err := e.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.IsClosed {
		return nil, fmt.Errorf("%w: offer %d", ErrOfferClosed, offerID)
	}
	if deadlinePassed(offer, e.now()) {
		return nil, fmt.Errorf("%w: offer %d", ErrOfferExpired, offerID)
	}

	profile, err := e.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	fit, vec := e.scoreEntities(profile, offer)
	snapshot, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("marshal feature snapshot: %w", err)
	}

	var app database.Application
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch err := tx.Where("user_id = ? AND offer_id = ?", userID, offerID).First(&app).Error; {
		case err == nil:
			app.PredictedFit = &fit
			app.FeatureSnapshot = snapshot
			return tx.Save(&app).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			app = database.Application{
				UserID:          userID,
				OfferID:         offerID,
				Status:          database.ApplicationPending,
				PredictedFit:    &fit,
				FeatureSnapshot: snapshot,
			}
			return tx.Create(&app).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("upsert application: %w", err)
	}

	e.logger.Info("application scored",
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("offer_id", uint64(offerID)),
		slog.Float64("predicted_fit", fit),
	)
	return &app, nil
}
