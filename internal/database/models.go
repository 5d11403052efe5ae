package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 角色常量。只有学生参与匹配评分。
const (
	RoleStudent    = "student"
	RoleRecruiter  = "recruiter"
	RoleUniversity = "university"
	RoleAdmin      = "admin"
)

// 申请状态。rejected 为终态，不存在离开它的迁移。
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// 反馈类型。negative 是诚信级联（Integrity Cascade）的唯一触发器。
const (
	FeedbackNegative = "negative"
	FeedbackNeutral  = "neutral"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;size:255"`
	PasswordHash string `gorm:"size:255"`
	FirstName    string `gorm:"size:150"`
	LastName     string `gorm:"size:150"`
	Profile      *Profile
}

// University 表示合作院校，City 用于 location_match 特征。
type University struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;size:200"`
	City        string `gorm:"size:100"`
	Country     string `gorm:"size:100"`
	Website     string `gorm:"size:255"`
	EmailDomain string `gorm:"size:100"`
}

// Company 表示发布 Offer 的企业。
type Company struct {
	gorm.Model
	Name     string `gorm:"uniqueIndex;size:200"`
	Industry string `gorm:"size:150"`
	Website  string `gorm:"size:255"`
	City     string `gorm:"size:100"`
	Country  string `gorm:"size:100"`
}

// Skill 全局唯一技能标签。
type Skill struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;size:100"`
}

// Certification 证书，自带一组技能（cert_ratio 特征以此为准）。
type Certification struct {
	gorm.Model
	Name     string  `gorm:"size:150"`
	Issuer   string  `gorm:"size:150"`
	Level    string  `gorm:"size:50"`
	IssuedAt *time.Time
	Skills   []Skill `gorm:"many2many:certification_skills"`
}

// Profile 表示候选人画像。Score 是游戏化积分的反范式缓存，
// 所有变更必须经过 ledger 服务与 ScoreEntry 在同一事务内落库。
type Profile struct {
	gorm.Model
	UserID         uint            `gorm:"uniqueIndex"`
	User           User            `gorm:"constraint:OnDelete:CASCADE"`
	Role           string          `gorm:"size:20;default:student;index"`
	UniversityID   *uint
	University     *University
	FieldOfStudy   string          `gorm:"size:150"`
	GPA            *float64
	Score          int             `gorm:"default:0"`
	IsVerified     bool
	Notes          string          `gorm:"type:text"`
	Skills         []Skill         `gorm:"many2many:profile_skills"`
	Certifications []Certification `gorm:"many2many:profile_certifications"`
	CompanyID      *uint
	Company        *Company
}

// Offer 表示招聘/实习岗位。
//
// BonusDistributedAt 是关闭奖励的一次性发放守卫：二次 close 不会重复加分。
// ExtendedDeadline 若晚于 Deadline 则覆盖之。
type Offer struct {
	gorm.Model
	Title              string  `gorm:"size:200"`
	CompanyID          uint    `gorm:"index"`
	Company            Company
	Description        string  `gorm:"type:text"`
	FieldRequired      string  `gorm:"size:150"`
	LevelRequired      string  `gorm:"size:20;default:intern"`
	RequiredSkills     []Skill `gorm:"many2many:offer_required_skills"`
	Location           string  `gorm:"size:150"`
	Deadline           *time.Time
	ExtendedDeadline   *time.Time
	IsClosed           bool
	ClosedAt           *time.Time
	BonusDistributedAt *time.Time
	CreatedByID        *uint
}

// Application 表示一次投递，(UserID, OfferID) 唯一。
//
// PredictedFit 在首次投递时计算，之后由重算任务保持与画像/岗位一致。
// FeatureSnapshot 记录最近一次评分所用的特征向量，用于审计与排查。
// FinalRank 目前引擎不写入，保留给将来的物化排名。
type Application struct {
	gorm.Model
	UserID          uint           `gorm:"index;uniqueIndex:idx_applications_user_offer"`
	User            User           `gorm:"constraint:OnDelete:CASCADE"`
	OfferID         uint           `gorm:"index;uniqueIndex:idx_applications_user_offer"`
	Offer           Offer          `gorm:"constraint:OnDelete:CASCADE"`
	Status          string         `gorm:"size:10;default:pending;index"`
	PredictedFit    *float64
	FinalRank       *int
	IsFake          bool           `gorm:"index"`
	FeatureSnapshot datatypes.JSON `gorm:"type:jsonb"`
}

// Feedback 招聘方对申请的评价。
type Feedback struct {
	gorm.Model
	ApplicationID uint        `gorm:"index"`
	Application   Application `gorm:"constraint:OnDelete:CASCADE"`
	RecruiterID   *uint
	Type          string `gorm:"size:10"`
	Comment       string `gorm:"type:text"`
}

// ScoreEntry 积分流水，只追加不修改。
//
// EventKey 是幂等键（如 offer-close:12:rank:3），唯一索引挡住重复发放。
type ScoreEntry struct {
	gorm.Model
	UserID   uint   `gorm:"index"`
	User     User   `gorm:"constraint:OnDelete:CASCADE"`
	Points   int
	Reason   string `gorm:"size:200"`
	EventKey string `gorm:"uniqueIndex;size:120"`
}
