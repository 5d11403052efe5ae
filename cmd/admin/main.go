package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"gorm.io/gorm"

	"uniMatch/internal/auth"
	"uniMatch/internal/config"
	"uniMatch/internal/database"
	"uniMatch/internal/engine"
	"uniMatch/internal/seed"
)

func main() {
	var (
		createAdmin = flag.String("create-admin", "", "创建初始管理员账号（参数为邮箱）")
		runSeed     = flag.Bool("seed", false, "生成演示数据")
		seedCount   = flag.Int("seed-students", 100, "演示学生数量")
		auditUser   = flag.Uint("audit-score", 0, "对账指定用户的积分流水")
		repair      = flag.Bool("repair", false, "对账发现漂移时回写修正")
	)
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	ctx := context.Background()

	switch {
	case *createAdmin != "":
		runCreateAdmin(db, *createAdmin)
	case *runSeed:
		eng := newEngine(db, cfg, logger)
		if err := seed.Run(ctx, db, eng, logger, seed.Options{Students: *seedCount}); err != nil {
			log.Fatalf("seed: %v", err)
		}
	case *auditUser > 0:
		eng := newEngine(db, cfg, logger)
		report, err := eng.ReconcileScore(ctx, uint(*auditUser), *repair)
		if err != nil {
			log.Fatalf("audit: %v", err)
		}
		fmt.Printf("user=%d cached=%d ledger=%d drift=%d repaired=%v\n",
			report.UserID, report.CachedScore, report.LedgerSum, report.Drift, report.Repaired)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func newEngine(db *gorm.DB, cfg *config.Config, logger *slog.Logger) *engine.Engine {
	scorer, err := engine.NewScorerFromConfig(cfg.Engine.ModelArtifactPath)
	if err != nil {
		log.Fatalf("init base scorer: %v", err)
	}
	bonusTable, err := engine.BonusTableByName(cfg.Engine.BonusTable)
	if err != nil {
		log.Fatalf("resolve bonus table: %v", err)
	}
	return engine.New(db, scorer, engine.Options{
		Logger:             logger,
		BonusTable:         bonusTable,
		FraudPenaltyPoints: cfg.Engine.FraudPenaltyPoints,
		RecomputeChunkSize: cfg.Engine.RecomputeChunkSize,
	})
}

func runCreateAdmin(db *gorm.DB, email string) {
	var existing database.User
	switch err := db.Where("email = ?", email).First(&existing).Error; {
	case err == nil:
		log.Fatalf("user %q already exists", email)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query user: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		user := database.User{Email: email, PasswordHash: hashed}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		profile := database.Profile{UserID: user.ID, Role: database.RoleAdmin, IsVerified: true}
		return tx.Create(&profile).Error
	})
	if err != nil {
		log.Fatalf("create admin: %v", err)
	}

	fmt.Printf("已创建初始管理员账号：\n")
	fmt.Printf("邮箱: %s\n", email)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
