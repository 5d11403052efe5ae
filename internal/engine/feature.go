package engine

import (
	"strings"
	"time"

	"uniMatch/internal/database"
)

// FeatureNames 定义模型输入的固定特征顺序。
// 该顺序是引擎与离线训练产物之间唯一的结构契约，改动即破坏已有模型。
var FeatureNames = []string{
	"gpa_norm",
	"score_norm",
	"skill_match_ratio",
	"field_match",
	"cert_ratio",
	"location_match",
}

// EmptySkillMatch 是岗位未声明必备技能时 skill_match_ratio 的取值。
// 历史上线上评分按 1.0（视为完全匹配）、训练导出按 0.0，两边不一致；
// 这里统一取 1.0，训练导出路径（internal/seed）也引用本常量。
const EmptySkillMatch = 1.0

// 归一化分母。
const (
	gpaScale   = 4.0
	scoreScale = 400.0
)

// Vector 是 (候选人, 岗位) 的定长数值摘要。
// 前六个字段按 FeatureNames 顺序进入模型；CertCount 与 DeadlinePassed
// 仅供规则层使用，不参与模型推理。
type Vector struct {
	GPANorm         float64 `json:"gpa_norm"`
	ScoreNorm       float64 `json:"score_norm"`
	SkillMatchRatio float64 `json:"skill_match_ratio"`
	FieldMatch      float64 `json:"field_match"`
	CertRatio       float64 `json:"cert_ratio"`
	LocationMatch   float64 `json:"location_match"`
	CertCount       int     `json:"cert_count"`
	DeadlinePassed  bool    `json:"deadline_passed"`
}

// ModelInputs 按 FeatureNames 顺序展开模型输入。
func (v Vector) ModelInputs() []float64 {
	return []float64{
		v.GPANorm,
		v.ScoreNorm,
		v.SkillMatchRatio,
		v.FieldMatch,
		v.CertRatio,
		v.LocationMatch,
	}
}

// ExtractFeatures 从当前画像与岗位构造特征向量。纯函数，无副作用；
// GPA/Score 为空按 0 处理，不报错。
func ExtractFeatures(profile *database.Profile, offer *database.Offer, now time.Time) Vector {
	var gpa float64
	if profile.GPA != nil {
		gpa = *profile.GPA
	}

	v := Vector{
		GPANorm:         clamp01(gpa / gpaScale),
		ScoreNorm:       clamp01(float64(profile.Score) / scoreScale),
		SkillMatchRatio: skillMatchRatio(profile, offer),
		CertCount:       len(profile.Certifications),
		DeadlinePassed:  deadlinePassed(offer, now),
	}

	// 字段完全相等才算匹配（大小写敏感，首尾空白忽略）。
	if strings.TrimSpace(profile.FieldOfStudy) == strings.TrimSpace(offer.FieldRequired) {
		v.FieldMatch = 1
	}

	matching := certMatchCount(profile, offer)
	v.CertRatio = float64(matching) / float64(max(len(profile.Certifications), 1))

	if profile.University != nil && offer.Location != "" {
		city := strings.TrimSpace(strings.ToLower(profile.University.City))
		loc := strings.TrimSpace(strings.ToLower(offer.Location))
		if city != "" && city == loc {
			v.LocationMatch = 1
		}
	}

	return v
}

// skillMatchRatio 计算候选人覆盖岗位必备技能的比例。
func skillMatchRatio(profile *database.Profile, offer *database.Offer) float64 {
	if len(offer.RequiredSkills) == 0 {
		return EmptySkillMatch
	}

	owned := make(map[string]struct{}, len(profile.Skills))
	for _, s := range profile.Skills {
		owned[s.Name] = struct{}{}
	}

	matched := 0
	for _, s := range offer.RequiredSkills {
		if _, ok := owned[s.Name]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(offer.RequiredSkills))
}

// certMatchCount 统计技能集与岗位要求有交集的证书数量。
func certMatchCount(profile *database.Profile, offer *database.Offer) int {
	if len(offer.RequiredSkills) == 0 {
		return 0
	}
	required := make(map[string]struct{}, len(offer.RequiredSkills))
	for _, s := range offer.RequiredSkills {
		required[s.Name] = struct{}{}
	}

	count := 0
	for _, cert := range profile.Certifications {
		for _, s := range cert.Skills {
			if _, ok := required[s.Name]; ok {
				count++
				break
			}
		}
	}
	return count
}

// deadlinePassed 判断岗位是否已过期：截止日期早于今天，
// 且不存在仍然有效的延长截止日期。
func deadlinePassed(offer *database.Offer, now time.Time) bool {
	if offer.Deadline == nil {
		return false
	}
	today := truncateToDay(now)
	if !truncateToDay(*offer.Deadline).Before(today) {
		return false
	}
	if offer.ExtendedDeadline != nil && !truncateToDay(*offer.ExtendedDeadline).Before(today) {
		return false
	}
	return true
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
