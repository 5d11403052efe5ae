package engine

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"uniMatch/internal/database"
)

// rankOrder 是全系统唯一的排名排序：fit 降序，未评分的垫底，
// 并以投递时间、主键补齐确定性平局裁决。级联的替补选择复用同一顺序。
const rankOrder = "predicted_fit IS NULL, predicted_fit DESC, created_at ASC, id ASC"

// RankedApplication 是排名视图中的一行。
type RankedApplication struct {
	Rank          int            `json:"rank"`
	ApplicationID uint           `json:"application_id"`
	CandidateID   uint           `json:"candidate_id"`
	Fit           *float64       `json:"fit"`
	Status        string         `json:"status"`
	IsFake        bool           `json:"is_fake"`
	Profile       ProfileSummary `json:"profile"`
}

// ProfileSummary 是排名视图附带的候选人摘要。
type ProfileSummary struct {
	Name         string   `json:"name"`
	FieldOfStudy string   `json:"field_of_study"`
	GPA          *float64 `json:"gpa"`
	Score        int      `json:"score"`
	University   string   `json:"university,omitempty"`
}

// Rank 返回岗位下按匹配分排序的申请列表。只读，不写 final_rank。
func (e *Engine) Rank(ctx context.Context, offerID uint) ([]RankedApplication, error) {
	if _, err := e.loadOffer(ctx, offerID); err != nil {
		return nil, err
	}

	var apps []database.Application
	err := e.db.WithContext(ctx).
		Preload("User").
		Where("offer_id = ?", offerID).
		Order(rankOrder).
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("list applications for offer %d: %w", offerID, err)
	}

	ranked := make([]RankedApplication, 0, len(apps))
	for i, app := range apps {
		row := RankedApplication{
			Rank:          i + 1,
			ApplicationID: app.ID,
			CandidateID:   app.UserID,
			Fit:           app.PredictedFit,
			Status:        app.Status,
			IsFake:        app.IsFake,
		}
		row.Profile = e.profileSummary(ctx, app.UserID, &app.User)
		ranked = append(ranked, row)
	}
	return ranked, nil
}

func (e *Engine) profileSummary(ctx context.Context, userID uint, user *database.User) ProfileSummary {
	summary := ProfileSummary{}
	if user != nil {
		summary.Name = user.FirstName + " " + user.LastName
	}

	var profile database.Profile
	err := e.db.WithContext(ctx).
		Preload("University").
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		// 摘要缺失不阻断排名视图。
		return summary
	}

	summary.FieldOfStudy = profile.FieldOfStudy
	summary.GPA = profile.GPA
	summary.Score = profile.Score
	if profile.University != nil {
		summary.University = profile.University.Name
	}
	return summary
}

// topN 取岗位下排名前 n 的申请（排序同 Rank），事务内部使用。
func topN(tx *gorm.DB, offerID uint, n int) ([]database.Application, error) {
	var apps []database.Application
	err := tx.Where("offer_id = ?", offerID).
		Order(rankOrder).
		Limit(n).
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("top %d applications for offer %d: %w", n, offerID, err)
	}
	return apps, nil
}
