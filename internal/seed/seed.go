// Package seed 生成演示/联调用的合成数据。
//
// 这里的带抖动评分只为造出分布合理的演示数据，属于测试/演示专用路径，
// 与 internal/engine 的生产评分互不相干，引擎代码不得引用本包。
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"uniMatch/internal/database"
	"uniMatch/internal/engine"
)

// Options 控制生成规模。
type Options struct {
	Universities int
	Companies    int
	Skills       int
	Students     int
	Offers       int
	Rand         *rand.Rand
}

func (o *Options) fill() {
	if o.Universities <= 0 {
		o.Universities = 5
	}
	if o.Companies <= 0 {
		o.Companies = 8
	}
	if o.Skills <= 0 {
		o.Skills = 20
	}
	if o.Students <= 0 {
		o.Students = 100
	}
	if o.Offers <= 0 {
		o.Offers = 15
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

var fields = []string{"Computer Science", "Data Science", "Mechanical Engineering", "Business", "Design"}
var cities = []string{"Casablanca", "Rabat", "Marrakesh", "Tangier", "Fes"}

// Run 批量生成院校、企业、技能、学生与岗位，并为每个学生
// 模拟投递（评分走生产引擎，附加演示抖动只影响标签分布）。
func Run(ctx context.Context, db *gorm.DB, eng *engine.Engine, logger *slog.Logger, opts Options) error {
	opts.fill()
	r := opts.Rand

	skills := make([]database.Skill, 0, opts.Skills)
	for i := 0; i < opts.Skills; i++ {
		skills = append(skills, database.Skill{Name: fmt.Sprintf("skill-%02d", i+1)})
	}
	if err := db.WithContext(ctx).Create(&skills).Error; err != nil {
		return fmt.Errorf("seed skills: %w", err)
	}

	universities := make([]database.University, 0, opts.Universities)
	for i := 0; i < opts.Universities; i++ {
		universities = append(universities, database.University{
			Name: fmt.Sprintf("University %02d", i+1),
			City: cities[i%len(cities)],
		})
	}
	if err := db.WithContext(ctx).Create(&universities).Error; err != nil {
		return fmt.Errorf("seed universities: %w", err)
	}

	companies := make([]database.Company, 0, opts.Companies)
	for i := 0; i < opts.Companies; i++ {
		companies = append(companies, database.Company{
			Name: fmt.Sprintf("Company %02d", i+1),
			City: cities[r.Intn(len(cities))],
		})
	}
	if err := db.WithContext(ctx).Create(&companies).Error; err != nil {
		return fmt.Errorf("seed companies: %w", err)
	}

	students := make([]uint, 0, opts.Students)
	for i := 0; i < opts.Students; i++ {
		user := database.User{
			Email:        fmt.Sprintf("student%04d@example.com", i+1),
			PasswordHash: "seeded-password",
			FirstName:    fmt.Sprintf("Student%04d", i+1),
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return fmt.Errorf("seed student user: %w", err)
		}

		gpa := 2.0 + r.Float64()*2.0
		score := 100 + r.Intn(301)
		uni := universities[r.Intn(len(universities))]
		profile := database.Profile{
			UserID:       user.ID,
			Role:         database.RoleStudent,
			UniversityID: &uni.ID,
			FieldOfStudy: fields[r.Intn(len(fields))],
			GPA:          &gpa,
			Score:        score,
			Skills:       pickSkills(r, skills, 2+r.Intn(5)),
		}
		if err := db.WithContext(ctx).Create(&profile).Error; err != nil {
			return fmt.Errorf("seed student profile: %w", err)
		}

		// 初始积分入账，保证画像分与流水对得上。
		entry := database.ScoreEntry{
			UserID:   user.ID,
			Points:   score,
			Reason:   "Seeded starting score",
			EventKey: fmt.Sprintf("seed:user:%d", user.ID),
		}
		if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
			return fmt.Errorf("seed score entry: %w", err)
		}

		students = append(students, user.ID)
	}

	offers := make([]database.Offer, 0, opts.Offers)
	for i := 0; i < opts.Offers; i++ {
		company := companies[r.Intn(len(companies))]
		deadline := time.Now().AddDate(0, 0, 14+r.Intn(60))
		offer := database.Offer{
			Title:          fmt.Sprintf("Internship %02d", i+1),
			CompanyID:      company.ID,
			FieldRequired:  fields[r.Intn(len(fields))],
			Location:       cities[r.Intn(len(cities))],
			Deadline:       &deadline,
			RequiredSkills: pickSkills(r, skills, 1+r.Intn(4)),
		}
		if err := db.WithContext(ctx).Create(&offer).Error; err != nil {
			return fmt.Errorf("seed offer: %w", err)
		}
		offers = append(offers, offer)
	}

	applications := 0
	for _, offer := range offers {
		for _, userID := range students {
			// 不是人人都投每个岗位。
			if r.Float64() > 0.3 {
				continue
			}
			if _, err := eng.Apply(ctx, userID, offer.ID); err != nil {
				return fmt.Errorf("simulate application: %w", err)
			}
			applications++
		}
	}

	logger.Info("synthetic data generated",
		slog.Int("students", len(students)),
		slog.Int("offers", len(offers)),
		slog.Int("applications", applications),
	)
	return nil
}

// ExportTrainingRows 导出离线训练样本（status 为 accepted/rejected 的申请）。
// skill_match_ratio 的空要求约定与线上一致，引用 engine.EmptySkillMatch。
func ExportTrainingRows(ctx context.Context, db *gorm.DB, eng *engine.Engine) ([]TrainingRow, error) {
	var apps []database.Application
	err := db.WithContext(ctx).
		Where("status IN ?", []string{database.ApplicationAccepted, database.ApplicationRejected}).
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("list labeled applications: %w", err)
	}

	rows := make([]TrainingRow, 0, len(apps))
	for _, app := range apps {
		fit, vec, err := eng.ScoreApplication(ctx, &app)
		if err != nil {
			return nil, err
		}
		label := 0
		if app.Status == database.ApplicationAccepted {
			label = 1
		}
		rows = append(rows, TrainingRow{Features: vec, Fit: fit, Label: label})
	}
	return rows, nil
}

// TrainingRow 单条训练样本。
type TrainingRow struct {
	Features engine.Vector `json:"features"`
	Fit      float64       `json:"fit"`
	Label    int           `json:"label"`
}

func pickSkills(r *rand.Rand, pool []database.Skill, n int) []database.Skill {
	if n > len(pool) {
		n = len(pool)
	}
	idx := r.Perm(len(pool))[:n]
	out := make([]database.Skill, 0, n)
	for _, i := range idx {
		out = append(out, pool[i])
	}
	return out
}
