package engine

import "errors"

// 引擎对外的哨兵错误。API 层据此映射 HTTP 状态码。
var (
	// ErrArtifactIncompatible 模型产物与当前特征 schema 不一致（配置错误，启动即失败）。
	ErrArtifactIncompatible = errors.New("model artifact incompatible with feature schema")

	// ErrApplicationNotFound 申请不存在。
	ErrApplicationNotFound = errors.New("application not found")

	// ErrProfileNotFound 候选人画像不存在。
	ErrProfileNotFound = errors.New("candidate profile not found")

	// ErrOfferNotFound 岗位不存在。
	ErrOfferNotFound = errors.New("offer not found")

	// ErrOfferClosed 岗位已关闭，不接受投递。
	ErrOfferClosed = errors.New("offer is closed")

	// ErrOfferExpired 岗位截止日期已过且无有效延长期。
	ErrOfferExpired = errors.New("offer deadline has passed")

	// ErrBonusAlreadyDistributed 关闭奖励已发放过，二次关闭是明确的 no-op。
	ErrBonusAlreadyDistributed = errors.New("close bonus already distributed for this offer")

	// ErrCascadeBusy 同一岗位上已有级联在执行；调用方应整体重试，绝不部分应用。
	ErrCascadeBusy = errors.New("another cascade is running for this offer")
)
