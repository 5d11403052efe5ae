package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// BaseScorer 把特征向量映射为 [0,1] 的基础录取概率。
// 实现必须是确定性的：相同输入永远得到相同输出。
type BaseScorer interface {
	Predict(v Vector) float64
	Describe() string
}

// Artifact 是离线训练管线导出的模型文件（JSON）：
// 标准化参数（StandardScaler 的均值/缩放）加一层逻辑回归。
// FeatureNames 必须与引擎的特征顺序逐一吻合，否则拒绝加载。
type Artifact struct {
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	ScalerMean   []float64 `json:"scaler_mean"`
	ScalerScale  []float64 `json:"scaler_scale"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Model 包装已加载的训练产物。构造即校验，进程内只加载一次。
type Model struct {
	artifact Artifact
}

// LoadModel 读取并校验模型文件。任何 schema 不匹配都立即失败，
// 绝不带病上线产出垃圾分数。
func LoadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact %q: %w", path, err)
	}

	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("parse model artifact %q: %w", path, err)
	}

	if err := validateArtifact(artifact); err != nil {
		return nil, fmt.Errorf("model artifact %q: %w", path, err)
	}

	return &Model{artifact: artifact}, nil
}

// NewModel 直接从内存中的产物构造，测试与嵌入场景使用。
func NewModel(artifact Artifact) (*Model, error) {
	if err := validateArtifact(artifact); err != nil {
		return nil, err
	}
	return &Model{artifact: artifact}, nil
}

func validateArtifact(a Artifact) error {
	n := len(FeatureNames)
	if len(a.FeatureNames) != n {
		return fmt.Errorf("%w: expected %d features, artifact has %d",
			ErrArtifactIncompatible, n, len(a.FeatureNames))
	}
	for i, name := range FeatureNames {
		if a.FeatureNames[i] != name {
			return fmt.Errorf("%w: feature %d is %q, expected %q",
				ErrArtifactIncompatible, i, a.FeatureNames[i], name)
		}
	}
	if len(a.ScalerMean) != n || len(a.ScalerScale) != n || len(a.Coefficients) != n {
		return fmt.Errorf("%w: scaler/coefficient length mismatch", ErrArtifactIncompatible)
	}
	for i, s := range a.ScalerScale {
		if s == 0 {
			return fmt.Errorf("%w: scaler scale for %q is zero", ErrArtifactIncompatible, a.FeatureNames[i])
		}
	}
	return nil
}

// Predict 先做标准化变换，再取逻辑回归的正类概率。
func (m *Model) Predict(v Vector) float64 {
	inputs := v.ModelInputs()
	z := m.artifact.Intercept
	for i, x := range inputs {
		scaled := (x - m.artifact.ScalerMean[i]) / m.artifact.ScalerScale[i]
		z += m.artifact.Coefficients[i] * scaled
	}
	return sigmoid(z)
}

// Describe 返回模型来源描述，用于启动日志。
func (m *Model) Describe() string {
	if m.artifact.Version == "" {
		return "trained artifact"
	}
	return fmt.Sprintf("trained artifact (version %s)", m.artifact.Version)
}

// FallbackModel 是未配置训练产物时的确定性启发式：
// 对同一组特征做固定线性组合。权重之和为 1，输出天然落在 [0,1]。
//
//	0.25*gpa_norm + 0.15*score_norm + 0.30*skill_match_ratio
//	+ 0.15*field_match + 0.10*cert_ratio + 0.05*location_match
type FallbackModel struct{}

var fallbackWeights = []float64{0.25, 0.15, 0.30, 0.15, 0.10, 0.05}

// Predict 实现 BaseScorer。
func (FallbackModel) Predict(v Vector) float64 {
	total := 0.0
	for i, x := range v.ModelInputs() {
		total += fallbackWeights[i] * x
	}
	return clamp01(total)
}

// Describe 实现 BaseScorer。
func (FallbackModel) Describe() string {
	return "heuristic fallback (no trained artifact configured)"
}

// NewScorerFromConfig 根据配置选择基础评分器：
// 路径为空走启发式兜底，路径配置了但产物不兼容则直接失败。
func NewScorerFromConfig(artifactPath string) (BaseScorer, error) {
	if artifactPath == "" {
		return FallbackModel{}, nil
	}
	return LoadModel(artifactPath)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
