package engine

import "math"

// 规则层常量。顺序与数值是线上行为的一部分，调整前先看 rules_test。
const (
	gpaBonusHigh      = 0.10 // gpa >= 3.5
	gpaBonusMid       = 0.05 // gpa >= 3.0
	skillBonusFull    = 0.15 // 全部必备技能命中
	skillBonusPartial = 0.10 // 命中率 >= 0.7
	scoreBonusWeight  = 0.15 // 连续项：score_norm * 0.15
	fieldBonus        = 0.20
	locationBonus     = 0.05
	certBonusHigh     = 0.04 // 证书数 >= 5
	certBonusMid      = 0.02 // 证书数 >= 3
	certBonusLow      = 0.01 // 证书数 >= 1

	probabilityFloor   = 0.05
	probabilityCeiling = 0.98
)

// ApplyRules 在基础概率上叠加确定性修正并收敛到最终分。
// 纯函数，禁止任何随机抖动：带 jitter 的变体只存在于
// internal/seed 的演示数据生成器里，绝不能出现在这条生产路径上。
//
// 截止日期硬覆盖是唯一能绕过下限钳制的路径：过期岗位强制得 0。
func ApplyRules(v Vector, base float64) float64 {
	prob := base

	switch gpa := v.GPANorm * gpaScale; {
	case gpa >= 3.5:
		prob += gpaBonusHigh
	case gpa >= 3.0:
		prob += gpaBonusMid
	}

	switch {
	case v.SkillMatchRatio == 1.0:
		prob += skillBonusFull
	case v.SkillMatchRatio >= 0.7:
		prob += skillBonusPartial
	}

	prob += v.ScoreNorm * scoreBonusWeight

	if v.FieldMatch == 1 {
		prob += fieldBonus
	}

	if v.LocationMatch == 1 {
		prob += locationBonus
	}

	// 证书加成按数量分档（不是 cert_ratio）。
	switch {
	case v.CertCount >= 5:
		prob += certBonusHigh
	case v.CertCount >= 3:
		prob += certBonusMid
	case v.CertCount >= 1:
		prob += certBonusLow
	}

	if v.DeadlinePassed {
		return 0.0
	}

	prob = math.Max(probabilityFloor, math.Min(prob, probabilityCeiling))
	return round3(prob)
}

// round3 保留三位小数。
func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
