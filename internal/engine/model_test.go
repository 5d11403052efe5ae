package engine

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validArtifact() Artifact {
	n := len(FeatureNames)
	a := Artifact{
		Version:      "test-1",
		FeatureNames: append([]string(nil), FeatureNames...),
		ScalerMean:   make([]float64, n),
		ScalerScale:  make([]float64, n),
		Coefficients: make([]float64, n),
	}
	for i := range a.ScalerScale {
		a.ScalerScale[i] = 1
	}
	return a
}

func TestFallbackModel_Weights(t *testing.T) {
	m := FallbackModel{}

	full := Vector{GPANorm: 1, ScoreNorm: 1, SkillMatchRatio: 1, FieldMatch: 1, CertRatio: 1, LocationMatch: 1}
	if got := m.Predict(full); !almostEqual(got, 1.0) {
		t.Fatalf("all-ones vector = %v, want 1.0", got)
	}

	v := Vector{GPANorm: 0.8, ScoreNorm: 0.5, SkillMatchRatio: 1, FieldMatch: 1, CertRatio: 0.5}
	// 0.25*0.8 + 0.15*0.5 + 0.30 + 0.15 + 0.10*0.5 = 0.775
	if got := m.Predict(v); !almostEqual(got, 0.775) {
		t.Fatalf("predict = %v, want 0.775", got)
	}

	if m.Predict(v) != m.Predict(v) {
		t.Fatal("fallback prediction must be deterministic")
	}
}

func TestNewModel_RejectsIncompatibleArtifact(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Artifact)
	}{
		{"missing feature", func(a *Artifact) { a.FeatureNames = a.FeatureNames[:len(a.FeatureNames)-1] }},
		{"reordered features", func(a *Artifact) {
			a.FeatureNames[0], a.FeatureNames[1] = a.FeatureNames[1], a.FeatureNames[0]
		}},
		{"renamed feature", func(a *Artifact) { a.FeatureNames[2] = "skill_overlap" }},
		{"short coefficients", func(a *Artifact) { a.Coefficients = a.Coefficients[:2] }},
		{"short scaler", func(a *Artifact) { a.ScalerMean = a.ScalerMean[:1] }},
		{"zero scale", func(a *Artifact) { a.ScalerScale[3] = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validArtifact()
			tc.mutate(&a)
			if _, err := NewModel(a); !errors.Is(err, ErrArtifactIncompatible) {
				t.Fatalf("expected ErrArtifactIncompatible, got %v", err)
			}
		})
	}
}

func TestModel_Predict(t *testing.T) {
	a := validArtifact()
	m, err := NewModel(a)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}

	// 系数全零、截距为零时 sigmoid(0) = 0.5。
	if got := m.Predict(Vector{GPANorm: 0.7}); !almostEqual(got, 0.5) {
		t.Fatalf("zero-coefficient model = %v, want 0.5", got)
	}

	a.Coefficients[0] = 2.0
	m, err = NewModel(a)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	low := m.Predict(Vector{GPANorm: 0.2})
	high := m.Predict(Vector{GPANorm: 0.9})
	if high <= low {
		t.Fatalf("positive coefficient must be monotonic: low=%v high=%v", low, high)
	}
	if low < 0 || high > 1 {
		t.Fatalf("probabilities out of range: %v %v", low, high)
	}
}

func TestLoadModel_FromFile(t *testing.T) {
	a := validArtifact()
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	m, err := LoadModel(path)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	if m.Describe() != "trained artifact (version test-1)" {
		t.Fatalf("describe = %q", m.Describe())
	}

	if _, err := LoadModel(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing artifact file")
	}
}

func TestNewScorerFromConfig(t *testing.T) {
	scorer, err := NewScorerFromConfig("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if _, ok := scorer.(FallbackModel); !ok {
		t.Fatalf("expected fallback scorer, got %T", scorer)
	}

	// 配置了路径但产物损坏必须直接失败，不退回兜底。
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"feature_names":["x"]}`), 0o600); err != nil {
		t.Fatalf("write bad artifact: %v", err)
	}
	if _, err := NewScorerFromConfig(bad); !errors.Is(err, ErrArtifactIncompatible) {
		t.Fatalf("expected ErrArtifactIncompatible, got %v", err)
	}
}
