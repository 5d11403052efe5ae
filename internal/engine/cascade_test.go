package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"uniMatch/internal/database"
)

func applicationStatus(t *testing.T, db *gorm.DB, appID uint) (string, bool) {
	t.Helper()
	var app database.Application
	if err := db.First(&app, appID).Error; err != nil {
		t.Fatalf("load application: %v", err)
	}
	return app.Status, app.IsFake
}

func TestCascade_ReplacesFlaggedAcceptedCandidate(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Cascade Role", nil)
	base := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)

	cheat := createStudent(t, db, "cheat@example.com", 3.0, 50)
	backup := createStudent(t, db, "backup@example.com", 3.0, 0)
	weaker := createStudent(t, db, "weaker@example.com", 3.0, 0)

	flagged := createApplication(t, db, cheat.ID, offer.ID, floatPtr(0.9), database.ApplicationAccepted, base)
	best := createApplication(t, db, backup.ID, offer.ID, floatPtr(0.8), database.ApplicationPending, base)
	createApplication(t, db, weaker.ID, offer.ID, floatPtr(0.6), database.ApplicationPending, base)

	result, err := e.OnNegativeFeedback(ctx, flagged.ID)
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}

	if !result.Flagged {
		t.Fatal("application must be flagged on first negative feedback")
	}
	if len(result.Demoted) != 1 || result.Demoted[0] != flagged.ID {
		t.Fatalf("demoted = %v, want [%d]", result.Demoted, flagged.ID)
	}
	// 替补按排名选最高的 pending。
	if len(result.Promoted) != 1 || result.Promoted[0] != best.ID {
		t.Fatalf("promoted = %v, want [%d]", result.Promoted, best.ID)
	}
	if result.SeatsLost != 0 {
		t.Fatalf("seats lost = %d, want 0", result.SeatsLost)
	}

	status, isFake := applicationStatus(t, db, flagged.ID)
	if status != database.ApplicationRejected || !isFake {
		t.Fatalf("flagged app state = %s fake=%v", status, isFake)
	}
	if status, _ := applicationStatus(t, db, best.ID); status != database.ApplicationAccepted {
		t.Fatalf("replacement status = %s, want accepted", status)
	}

	// 处罚入账：50 - 10。
	if got := profileScore(t, db, cheat.ID); got != 40 {
		t.Fatalf("cheater score = %d, want 40", got)
	}
}

func TestCascade_SeatConservation(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Seats Role", nil)
	base := time.Date(2025, 5, 21, 9, 0, 0, 0, time.UTC)

	// 3 个录取席位，其中 2 个造假；替补池 2 个合格 pending。
	honest := createStudent(t, db, "honest@example.com", 3.0, 0)
	fakeA := createStudent(t, db, "fake-a@example.com", 3.0, 0)
	fakeB := createStudent(t, db, "fake-b@example.com", 3.0, 0)
	subOne := createStudent(t, db, "sub-1@example.com", 3.0, 0)
	subTwo := createStudent(t, db, "sub-2@example.com", 3.0, 0)

	honestApp := createApplication(t, db, honest.ID, offer.ID, floatPtr(0.95), database.ApplicationAccepted, base)
	appA := createApplication(t, db, fakeA.ID, offer.ID, floatPtr(0.90), database.ApplicationAccepted, base)
	appB := createApplication(t, db, fakeB.ID, offer.ID, floatPtr(0.88), database.ApplicationAccepted, base)
	createApplication(t, db, subOne.ID, offer.ID, floatPtr(0.70), database.ApplicationPending, base)
	createApplication(t, db, subTwo.ID, offer.ID, floatPtr(0.65), database.ApplicationPending, base)

	// 第一个欺诈信号已落了 is_fake 标记但级联尚未跑完的场景：
	// 直接预标记 A，再对 B 反馈，单次级联应换掉两个席位。
	if err := db.Model(appA).UpdateColumn("is_fake", true).Error; err != nil {
		t.Fatalf("pre-flag: %v", err)
	}

	result, err := e.OnNegativeFeedback(ctx, appB.ID)
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if len(result.Demoted) != 2 || len(result.Promoted) != 2 {
		t.Fatalf("demoted=%v promoted=%v, want 2 and 2", result.Demoted, result.Promoted)
	}
	if result.SeatsLost != 0 {
		t.Fatalf("seats lost = %d, want 0", result.SeatsLost)
	}

	// 录取席位总数不变。
	var accepted int64
	db.Model(&database.Application{}).
		Where("offer_id = ? AND status = ?", offer.ID, database.ApplicationAccepted).
		Count(&accepted)
	if accepted != 3 {
		t.Fatalf("accepted seats = %d, want 3", accepted)
	}
	if status, _ := applicationStatus(t, db, honestApp.ID); status != database.ApplicationAccepted {
		t.Fatalf("honest candidate must keep the seat, status = %s", status)
	}
}

func TestCascade_UnderFillReportsSeatsLost(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Underfill Role", nil)
	base := time.Date(2025, 5, 22, 9, 0, 0, 0, time.UTC)

	cheat := createStudent(t, db, "underfill@example.com", 3.0, 0)
	pendingFake := createStudent(t, db, "pending-fake@example.com", 3.0, 0)

	flagged := createApplication(t, db, cheat.ID, offer.ID, floatPtr(0.9), database.ApplicationAccepted, base)
	// 替补池里唯一的 pending 也是造假者，不可晋升。
	tainted := createApplication(t, db, pendingFake.ID, offer.ID, floatPtr(0.8), database.ApplicationPending, base)
	if err := db.Model(tainted).UpdateColumn("is_fake", true).Error; err != nil {
		t.Fatalf("taint pending: %v", err)
	}

	result, err := e.OnNegativeFeedback(ctx, flagged.ID)
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if len(result.Promoted) != 0 {
		t.Fatalf("promoted = %v, want none", result.Promoted)
	}
	if result.SeatsLost != 1 {
		t.Fatalf("seats lost = %d, want 1", result.SeatsLost)
	}
	if status, _ := applicationStatus(t, db, tainted.ID); status != database.ApplicationPending {
		t.Fatalf("fake pending must never be promoted, status = %s", status)
	}
}

func TestCascade_PendingTargetOnlyFlags(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Pending Role", nil)
	user := createStudent(t, db, "pending-only@example.com", 3.0, 30)
	app := createApplication(t, db, user.ID, offer.ID, floatPtr(0.7), database.ApplicationPending, time.Now())

	result, err := e.OnNegativeFeedback(ctx, app.ID)
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if !result.Flagged {
		t.Fatal("expected flag")
	}
	if len(result.Demoted) != 0 || len(result.Promoted) != 0 || result.SeatsLost != 0 {
		t.Fatalf("pending target must not move seats: %+v", result)
	}
	// 扣分仍然生效，申请保持 pending 且带 fake 标记。
	if got := profileScore(t, db, user.ID); got != 20 {
		t.Fatalf("score = %d, want 20", got)
	}
	status, isFake := applicationStatus(t, db, app.ID)
	if status != database.ApplicationPending || !isFake {
		t.Fatalf("app state = %s fake=%v", status, isFake)
	}
}

func TestCascade_PenaltyFloorAndIdempotence(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Floor Role", nil)
	poor := createStudent(t, db, "poor@example.com", 3.0, 4)
	app := createApplication(t, db, poor.ID, offer.ID, floatPtr(0.7), database.ApplicationPending, time.Now())

	if _, err := e.OnNegativeFeedback(ctx, app.ID); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	// 余额 4 只扣 4，封底为 0。
	if got := profileScore(t, db, poor.ID); got != 0 {
		t.Fatalf("score = %d, want 0", got)
	}
	var entry database.ScoreEntry
	if err := db.Where("user_id = ?", poor.ID).First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Points != -4 {
		t.Fatalf("ledger delta = %d, want actually-applied -4", entry.Points)
	}

	// 同一申请的第二条负反馈不重复扣分。
	result, err := e.OnNegativeFeedback(ctx, app.ID)
	if err != nil {
		t.Fatalf("second cascade: %v", err)
	}
	if result.Flagged {
		t.Fatal("already-fake application must not be re-flagged")
	}
	if got := profileScore(t, db, poor.ID); got != 0 {
		t.Fatalf("score after repeat = %d, want 0", got)
	}
	var entries int64
	db.Model(&database.ScoreEntry{}).Where("user_id = ?", poor.ID).Count(&entries)
	if entries != 1 {
		t.Fatalf("expected single penalty entry, got %d", entries)
	}
}

func TestCascade_BusyOfferLock(t *testing.T) {
	db := newTestDB(t)
	locker := NewLocalOfferLocker()
	e := newTestEngine(t, db, Options{Locker: locker})
	ctx := context.Background()

	offer := createOffer(t, db, "Busy Role", nil)
	user := createStudent(t, db, "busy@example.com", 3.0, 0)
	app := createApplication(t, db, user.ID, offer.ID, floatPtr(0.7), database.ApplicationAccepted, time.Now())

	release, err := locker.Lock(ctx, offer.ID)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}

	if _, err := e.OnNegativeFeedback(ctx, app.ID); !errors.Is(err, ErrCascadeBusy) {
		t.Fatalf("expected ErrCascadeBusy, got %v", err)
	}
	// 整个级联未执行：既无标记也无扣分。
	if _, isFake := applicationStatus(t, db, app.ID); isFake {
		t.Fatal("busy cascade must not partially execute")
	}

	release()
	if _, err := e.OnNegativeFeedback(ctx, app.ID); err != nil {
		t.Fatalf("retry after release: %v", err)
	}
}

func TestCascade_UnknownApplication(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})

	if _, err := e.OnNegativeFeedback(context.Background(), 12345); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}
