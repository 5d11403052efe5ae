package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRank_OrderingAndTieBreaks(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Ranked Role", nil)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	alice := createStudent(t, db, "alice@example.com", 3.5, 0)
	bob := createStudent(t, db, "bob@example.com", 3.5, 0)
	carol := createStudent(t, db, "carol@example.com", 3.5, 0)
	dave := createStudent(t, db, "dave@example.com", 3.5, 0)

	// bob 与 carol 同分，bob 投递更早应排前；dave 未评分垫底。
	createApplication(t, db, alice.ID, offer.ID, floatPtr(0.90), "pending", base)
	createApplication(t, db, bob.ID, offer.ID, floatPtr(0.75), "pending", base.Add(1*time.Hour))
	createApplication(t, db, carol.ID, offer.ID, floatPtr(0.75), "pending", base.Add(2*time.Hour))
	createApplication(t, db, dave.ID, offer.ID, nil, "pending", base)

	ranked, err := e.Rank(ctx, offer.ID)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(ranked) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(ranked))
	}

	wantOrder := []uint{alice.ID, bob.ID, carol.ID, dave.ID}
	for i, want := range wantOrder {
		if ranked[i].CandidateID != want {
			t.Fatalf("rank %d: candidate %d, want %d", i+1, ranked[i].CandidateID, want)
		}
		if ranked[i].Rank != i+1 {
			t.Fatalf("rank field = %d, want %d", ranked[i].Rank, i+1)
		}
	}
	if ranked[3].Fit != nil {
		t.Fatalf("unscored application must keep nil fit, got %v", *ranked[3].Fit)
	}
}

func TestRank_StableAcrossReads(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Stable Role", nil)
	at := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	// 全员同分同时刻，只剩主键裁决。
	for _, email := range []string{"s1@example.com", "s2@example.com", "s3@example.com"} {
		user := createStudent(t, db, email, 3.0, 0)
		createApplication(t, db, user.ID, offer.ID, floatPtr(0.5), "pending", at)
	}

	first, err := e.Rank(ctx, offer.ID)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	for run := 0; run < 3; run++ {
		again, err := e.Rank(ctx, offer.ID)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		for i := range first {
			if again[i].ApplicationID != first[i].ApplicationID {
				t.Fatalf("ordering not stable at row %d", i)
			}
		}
	}
}

func TestRank_IncludesProfileSummary(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})
	ctx := context.Background()

	offer := createOffer(t, db, "Summary Role", nil)
	user := createStudent(t, db, "summary@example.com", 3.2, 40)
	createApplication(t, db, user.ID, offer.ID, floatPtr(0.6), "pending", time.Now())

	ranked, err := e.Rank(ctx, offer.ID)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	row := ranked[0]
	if row.Profile.FieldOfStudy != "Computer Science" {
		t.Fatalf("profile summary field = %q", row.Profile.FieldOfStudy)
	}
	if row.Profile.Score != 40 {
		t.Fatalf("profile summary score = %d, want 40", row.Profile.Score)
	}
	if row.Profile.GPA == nil || *row.Profile.GPA != 3.2 {
		t.Fatalf("profile summary gpa = %v", row.Profile.GPA)
	}
}

func TestRank_UnknownOffer(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, Options{})

	if _, err := e.Rank(context.Background(), 404); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
}
