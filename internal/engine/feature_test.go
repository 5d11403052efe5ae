package engine

import (
	"math"
	"testing"
	"time"

	"uniMatch/internal/database"
)

var featureNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExtractFeatures_Normalization(t *testing.T) {
	gpa := 3.6
	profile := &database.Profile{GPA: &gpa, Score: 200}
	offer := &database.Offer{}

	v := ExtractFeatures(profile, offer, featureNow)
	if !almostEqual(v.GPANorm, 0.9) {
		t.Fatalf("gpa_norm = %v, want 0.9", v.GPANorm)
	}
	if !almostEqual(v.ScoreNorm, 0.5) {
		t.Fatalf("score_norm = %v, want 0.5", v.ScoreNorm)
	}
}

func TestExtractFeatures_ClampsOutOfRange(t *testing.T) {
	gpa := 5.0
	profile := &database.Profile{GPA: &gpa, Score: 900}
	v := ExtractFeatures(profile, &database.Offer{}, featureNow)
	if v.GPANorm != 1.0 || v.ScoreNorm != 1.0 {
		t.Fatalf("expected clamped features, got gpa=%v score=%v", v.GPANorm, v.ScoreNorm)
	}
}

func TestExtractFeatures_MissingGPA(t *testing.T) {
	v := ExtractFeatures(&database.Profile{}, &database.Offer{}, featureNow)
	if v.GPANorm != 0 {
		t.Fatalf("nil GPA should normalize to 0, got %v", v.GPANorm)
	}
}

func TestExtractFeatures_EmptyRequiredSkills(t *testing.T) {
	profile := &database.Profile{
		Skills:         []database.Skill{{Name: "Go"}},
		Certifications: []database.Certification{{Name: "cert", Skills: []database.Skill{{Name: "Go"}}}},
	}
	v := ExtractFeatures(profile, &database.Offer{}, featureNow)

	if v.SkillMatchRatio != EmptySkillMatch {
		t.Fatalf("skill_match_ratio = %v, want %v", v.SkillMatchRatio, EmptySkillMatch)
	}
	// 无要求时证书无从匹配。
	if v.CertRatio != 0 {
		t.Fatalf("cert_ratio = %v, want 0", v.CertRatio)
	}
}

func TestExtractFeatures_SkillMatchRatio(t *testing.T) {
	profile := &database.Profile{Skills: []database.Skill{{Name: "Go"}, {Name: "SQL"}}}
	offer := &database.Offer{RequiredSkills: []database.Skill{{Name: "Go"}, {Name: "SQL"}, {Name: "Docker"}, {Name: "K8s"}}}

	v := ExtractFeatures(profile, offer, featureNow)
	if !almostEqual(v.SkillMatchRatio, 0.5) {
		t.Fatalf("skill_match_ratio = %v, want 0.5", v.SkillMatchRatio)
	}
}

func TestExtractFeatures_CertRatio(t *testing.T) {
	profile := &database.Profile{
		Certifications: []database.Certification{
			{Name: "relevant", Skills: []database.Skill{{Name: "Go"}, {Name: "Rust"}}},
			{Name: "irrelevant", Skills: []database.Skill{{Name: "Photoshop"}}},
		},
	}
	offer := &database.Offer{RequiredSkills: []database.Skill{{Name: "Go"}}}

	v := ExtractFeatures(profile, offer, featureNow)
	if v.CertCount != 2 {
		t.Fatalf("cert_count = %d, want 2", v.CertCount)
	}
	if !almostEqual(v.CertRatio, 0.5) {
		t.Fatalf("cert_ratio = %v, want 0.5", v.CertRatio)
	}
}

func TestExtractFeatures_FieldMatch(t *testing.T) {
	cases := []struct {
		name     string
		profile  string
		offer    string
		expected float64
	}{
		{"exact", "Computer Science", "Computer Science", 1},
		{"trimmed", "  Computer Science ", "Computer Science", 1},
		{"case sensitive", "computer science", "Computer Science", 0},
		{"both empty", "", "", 1},
		{"one empty", "Computer Science", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profile := &database.Profile{FieldOfStudy: tc.profile}
			offer := &database.Offer{FieldRequired: tc.offer}
			if v := ExtractFeatures(profile, offer, featureNow); v.FieldMatch != tc.expected {
				t.Fatalf("field_match = %v, want %v", v.FieldMatch, tc.expected)
			}
		})
	}
}

func TestExtractFeatures_LocationMatch(t *testing.T) {
	profile := &database.Profile{University: &database.University{City: " Milan "}}

	v := ExtractFeatures(profile, &database.Offer{Location: "milan"}, featureNow)
	if v.LocationMatch != 1 {
		t.Fatalf("expected city match across case and whitespace")
	}

	v = ExtractFeatures(profile, &database.Offer{Location: "Rome"}, featureNow)
	if v.LocationMatch != 0 {
		t.Fatalf("expected no match for different city")
	}

	// 双空不算匹配。
	v = ExtractFeatures(&database.Profile{University: &database.University{}}, &database.Offer{}, featureNow)
	if v.LocationMatch != 0 {
		t.Fatalf("empty city and location must not match")
	}
}

func TestExtractFeatures_DeadlineSemantics(t *testing.T) {
	yesterday := featureNow.AddDate(0, 0, -1)
	today := featureNow
	lastWeek := featureNow.AddDate(0, 0, -7)

	cases := []struct {
		name     string
		deadline *time.Time
		extended *time.Time
		passed   bool
	}{
		{"no deadline", nil, nil, false},
		{"deadline today", &today, nil, false},
		{"deadline yesterday", &yesterday, nil, true},
		{"expired but extended to today", &yesterday, &today, false},
		{"both expired", &lastWeek, &yesterday, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offer := &database.Offer{Deadline: tc.deadline, ExtendedDeadline: tc.extended}
			v := ExtractFeatures(&database.Profile{}, offer, featureNow)
			if v.DeadlinePassed != tc.passed {
				t.Fatalf("deadline_passed = %v, want %v", v.DeadlinePassed, tc.passed)
			}
		})
	}
}

func TestModelInputs_OrderMatchesFeatureNames(t *testing.T) {
	v := Vector{GPANorm: 1, ScoreNorm: 2, SkillMatchRatio: 3, FieldMatch: 4, CertRatio: 5, LocationMatch: 6}
	inputs := v.ModelInputs()
	if len(inputs) != len(FeatureNames) {
		t.Fatalf("inputs len %d, feature names len %d", len(inputs), len(FeatureNames))
	}
	want := []float64{1, 2, 3, 4, 5, 6}
	for i := range want {
		if inputs[i] != want[i] {
			t.Fatalf("input %d (%s) = %v, want %v", i, FeatureNames[i], inputs[i], want[i])
		}
	}
}
