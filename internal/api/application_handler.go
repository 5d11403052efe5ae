package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"uniMatch/internal/api/middleware"
	"uniMatch/internal/database"
	"uniMatch/internal/engine"
	"uniMatch/internal/errcode"
)

// ApplicationHandler 处理投递、反馈与造假标记。
type ApplicationHandler struct {
	db     *gorm.DB
	engine *engine.Engine
	logger *slog.Logger
}

// NewApplicationHandler 构造申请处理器。
func NewApplicationHandler(db *gorm.DB, eng *engine.Engine, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{db: db, engine: eng, logger: logger}
}

type createApplicationRequest struct {
	OfferID uint `json:"offer_id" binding:"required"`
}

// Create 处理一次投递：引擎校验岗位状态、评分并 upsert。
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req createApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	logger := middleware.LoggerFromContext(c)
	app, err := h.engine.Apply(c.Request.Context(), userID, req.OfferID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrOfferNotFound):
			NotFound(c, "offer not found")
		case errors.Is(err, engine.ErrProfileNotFound):
			NotFound(c, "candidate profile not found")
		case errors.Is(err, engine.ErrOfferClosed):
			BadRequest(c, "this offer is closed")
		case errors.Is(err, engine.ErrOfferExpired):
			BadRequest(c, "this offer is expired")
		default:
			logger.Error("create application failed", slog.Any("error", err))
			Internal(c, "internal error")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            app.ID,
		"offer_id":      app.OfferID,
		"status":        app.Status,
		"predicted_fit": app.PredictedFit,
	})
}

// GetFit 返回申请当前落库的匹配分与即时重算值，便于排查陈旧度。
func (h *ApplicationHandler) GetFit(c *gin.Context) {
	appID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var app database.Application
	if err := h.db.WithContext(ctx).First(&app, appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return
		}
		logger.Error("load application failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 学生只能看自己的申请。
	if role := roleFromContext(c); role == database.RoleStudent {
		if userID, _ := userIDFromContext(c); userID != app.UserID {
			Forbidden(c, "not your application")
			return
		}
	}

	fresh, err := h.engine.Score(ctx, app.UserID, app.OfferID)
	if err != nil {
		logger.Error("score application failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"application_id": app.ID,
		"predicted_fit":  app.PredictedFit,
		"current_fit":    fresh,
	})
}

type createFeedbackRequest struct {
	Type    string `json:"type" binding:"required,oneof=negative neutral"`
	Comment string `json:"comment"`
}

// CreateFeedback 落库招聘方反馈；negative 反馈同步触发诚信级联，
// 响应体携带级联结果（含替补不足时空缺的席位数）。
func (h *ApplicationHandler) CreateFeedback(c *gin.Context) {
	appID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req createFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var app database.Application
	if err := h.db.WithContext(ctx).First(&app, appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return
		}
		logger.Error("load application failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	recruiterID, _ := userIDFromContext(c)
	feedback := database.Feedback{
		ApplicationID: app.ID,
		RecruiterID:   &recruiterID,
		Type:          req.Type,
		Comment:       req.Comment,
	}
	if err := h.db.WithContext(ctx).Create(&feedback).Error; err != nil {
		logger.Error("create feedback failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	response := gin.H{"feedback_id": feedback.ID, "type": feedback.Type}
	if req.Type == database.FeedbackNegative {
		result, err := h.engine.OnNegativeFeedback(ctx, app.ID)
		if err != nil {
			h.replyCascadeError(c, logger, err)
			return
		}
		response["cascade"] = result
		if result.SeatsLost > 0 {
			response["code"] = errcode.PartialFulfilled
			response["warning"] = "not enough eligible replacement candidates; some seats were lost"
		}
	}

	c.JSON(http.StatusCreated, response)
}

// MarkFake 管理员直接标记造假，与 negative 反馈走同一条级联路径。
func (h *ApplicationHandler) MarkFake(c *gin.Context) {
	appID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	logger := middleware.LoggerFromContext(c)
	result, err := h.engine.OnNegativeFeedback(c.Request.Context(), appID)
	if err != nil {
		h.replyCascadeError(c, logger, err)
		return
	}

	response := gin.H{"cascade": result}
	if result.SeatsLost > 0 {
		response["code"] = errcode.PartialFulfilled
		response["warning"] = "not enough eligible replacement candidates; some seats were lost"
	}
	c.JSON(http.StatusOK, response)
}

// ScoreHistory 返回当前用户的积分流水。
func (h *ApplicationHandler) ScoreHistory(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	logger := middleware.LoggerFromContext(c)
	entries, err := h.engine.ScoreHistory(c.Request.Context(), userID)
	if err != nil {
		logger.Error("list score history failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	type entryView struct {
		Points    int    `json:"points"`
		Reason    string `json:"reason"`
		CreatedAt string `json:"created_at"`
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			Points:    e.Points,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": views})
}

func (h *ApplicationHandler) replyCascadeError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, engine.ErrApplicationNotFound):
		NotFound(c, "application not found")
	case errors.Is(err, engine.ErrCascadeBusy):
		Conflict(c, errcode.CascadeBusy, "another integrity check is running for this offer, retry shortly")
	default:
		logger.Error("integrity cascade failed", slog.Any("error", err))
		Internal(c, "internal error")
	}
}
