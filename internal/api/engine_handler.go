package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"uniMatch/internal/api/middleware"
	"uniMatch/internal/engine"
)

// EngineHandler 暴露给协作方（CRUD 层）的内部引擎接口：
// 画像/岗位变更后的重算触发与计分对账。挂在 X-Internal-Secret 门禁后。
type EngineHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewEngineHandler 构造内部引擎处理器。
func NewEngineHandler(eng *engine.Engine, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{engine: eng, logger: logger}
}

// RecomputeCandidate 在候选人技能/证书/GPA/专业变更后由 CRUD 层调用。
func (h *EngineHandler) RecomputeCandidate(c *gin.Context) {
	userID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	logger := middleware.LoggerFromContext(c)
	correlationID := middleware.GetCorrelationID(c)
	if err := h.engine.RecomputeForCandidate(c.Request.Context(), userID, correlationID); err != nil {
		if errors.Is(err, engine.ErrProfileNotFound) {
			NotFound(c, "candidate profile not found")
			return
		}
		logger.Error("candidate recompute failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "recompute scheduled"})
}

// RecomputeOffer 在岗位要求变更后由 CRUD 层调用。
func (h *EngineHandler) RecomputeOffer(c *gin.Context) {
	offerID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	logger := middleware.LoggerFromContext(c)
	correlationID := middleware.GetCorrelationID(c)
	if err := h.engine.RecomputeForOffer(c.Request.Context(), offerID, correlationID); err != nil {
		if errors.Is(err, engine.ErrOfferNotFound) {
			NotFound(c, "offer not found")
			return
		}
		logger.Error("offer recompute failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "recompute scheduled"})
}

// AuditScore 对账单个用户的计分缓存与流水，?repair=true 时回写修正。
func (h *EngineHandler) AuditScore(c *gin.Context) {
	userID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	repair := c.Query("repair") == "true"

	logger := middleware.LoggerFromContext(c)
	report, err := h.engine.ReconcileScore(c.Request.Context(), userID, repair)
	if err != nil {
		if errors.Is(err, engine.ErrProfileNotFound) {
			NotFound(c, "candidate profile not found")
			return
		}
		logger.Error("score audit failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, report)
}
