package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"uniMatch/internal/api/middleware"
	"uniMatch/internal/database"
	"uniMatch/internal/engine"
	"uniMatch/internal/errcode"
)

// OfferHandler 处理岗位的关闭、重开、延期与排名视图。
type OfferHandler struct {
	db     *gorm.DB
	engine *engine.Engine
	logger *slog.Logger
}

// NewOfferHandler 构造岗位处理器。
func NewOfferHandler(db *gorm.DB, eng *engine.Engine, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{db: db, engine: eng, logger: logger}
}

// Close 关闭岗位并发放名次奖励；重复关闭返回 409，不会重复加分。
func (h *OfferHandler) Close(c *gin.Context) {
	offerID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	logger := middleware.LoggerFromContext(c)
	result, err := h.engine.CloseOffer(c.Request.Context(), offerID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrOfferNotFound):
			NotFound(c, "offer not found")
		case errors.Is(err, engine.ErrBonusAlreadyDistributed):
			Conflict(c, errcode.AlreadyDone, "offer already closed and bonus distributed")
		case errors.Is(err, engine.ErrCascadeBusy):
			Conflict(c, errcode.CascadeBusy, "offer is busy, retry shortly")
		default:
			logger.Error("close offer failed", slog.Any("error", err))
			Internal(c, "internal error")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "offer closed and bonus distributed",
		"awards":  result.Awards,
	})
}

// Reopen 重新开放岗位。
func (h *OfferHandler) Reopen(c *gin.Context) {
	offerID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	logger := middleware.LoggerFromContext(c)
	if err := h.engine.ReopenOffer(c.Request.Context(), offerID); err != nil {
		if errors.Is(err, engine.ErrOfferNotFound) {
			NotFound(c, "offer not found")
			return
		}
		logger.Error("reopen offer failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "offer reopened"})
}

type extendDeadlineRequest struct {
	ExtendedDeadline string `json:"extended_deadline" binding:"required"`
}

// ExtendDeadline 设置延长截止日期并触发该岗位的匹配分重算
// （deadline_passed 特征随之变化）。
func (h *OfferHandler) ExtendDeadline(c *gin.Context) {
	offerID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req extendDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	deadline, err := time.Parse("2006-01-02", req.ExtendedDeadline)
	if err != nil {
		BadRequest(c, "invalid date format, use YYYY-MM-DD")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	res := h.db.WithContext(ctx).Model(&database.Offer{}).
		Where("id = ?", offerID).
		UpdateColumn("extended_deadline", deadline)
	if res.Error != nil {
		logger.Error("extend deadline failed", slog.Any("error", res.Error))
		Internal(c, "internal error")
		return
	}
	if res.RowsAffected == 0 {
		NotFound(c, "offer not found")
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	if err := h.engine.RecomputeForOffer(ctx, offerID, correlationID); err != nil {
		logger.Error("enqueue offer recompute failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "offer deadline extended to " + req.ExtendedDeadline})
}

// Ranking 返回岗位下按匹配分排序的只读视图。
func (h *OfferHandler) Ranking(c *gin.Context) {
	offerID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	logger := middleware.LoggerFromContext(c)
	ranked, err := h.engine.Rank(c.Request.Context(), offerID)
	if err != nil {
		if errors.Is(err, engine.ErrOfferNotFound) {
			NotFound(c, "offer not found")
			return
		}
		logger.Error("rank offer failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"offer_id": offerID, "ranking": ranked})
}

// parseUintParam 解析路径参数里的数字 ID，失败时直接响应 400。
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(value), true
}
