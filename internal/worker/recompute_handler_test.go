package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"uniMatch/internal/database"
	"uniMatch/internal/engine"
	"uniMatch/internal/tasks"
)

var workerTestDBSeq atomic.Int64

func newTestHandler(t *testing.T) (*RecomputeTaskHandler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:workertest%d?mode=memory&cache=shared", workerTestDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(db, engine.FallbackModel{}, engine.Options{Logger: logger})
	return NewRecomputeTaskHandler(eng, logger), db
}

func newRecomputeTask(t *testing.T, subject string, id uint) *asynq.Task {
	t.Helper()
	task, err := tasks.NewFitRecomputeTask(subject, id, "test-correlation")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestProcessTask_RecomputesCandidate(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := context.Background()

	user := database.User{Email: "task@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	gpa := 3.5
	profile := database.Profile{UserID: user.ID, Role: database.RoleStudent, GPA: &gpa}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	offer := database.Offer{Title: "Task Role"}
	if err := db.Create(&offer).Error; err != nil {
		t.Fatalf("create offer: %v", err)
	}
	app := database.Application{UserID: user.ID, OfferID: offer.ID, Status: database.ApplicationPending}
	if err := db.Create(&app).Error; err != nil {
		t.Fatalf("create application: %v", err)
	}

	if err := h.ProcessTask(ctx, newRecomputeTask(t, tasks.SubjectCandidate, user.ID)); err != nil {
		t.Fatalf("process task: %v", err)
	}

	var reloaded database.Application
	if err := db.First(&reloaded, app.ID).Error; err != nil {
		t.Fatalf("reload application: %v", err)
	}
	if reloaded.PredictedFit == nil {
		t.Fatal("expected predicted fit after recompute task")
	}
}

func TestProcessTask_SkipsDeletedSubject(t *testing.T) {
	h, _ := newTestHandler(t)

	// 主体已删除的任务直接吞掉，不进入重试循环。
	if err := h.ProcessTask(context.Background(), newRecomputeTask(t, tasks.SubjectCandidate, 9999)); err != nil {
		t.Fatalf("expected nil for missing candidate, got %v", err)
	}
	if err := h.ProcessTask(context.Background(), newRecomputeTask(t, tasks.SubjectOffer, 9999)); err != nil {
		t.Fatalf("expected nil for missing offer, got %v", err)
	}
}

func TestProcessTask_UnknownSubjectNotRetried(t *testing.T) {
	h, _ := newTestHandler(t)

	payload, err := json.Marshal(tasks.FitRecomputePayload{Subject: "company", ID: 1})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	task := asynq.NewTask(tasks.TypeFitRecompute, payload)

	err = h.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for unknown subject, got %v", err)
	}
}
