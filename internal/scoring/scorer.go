package scoring

import (
	"math"
	"sort"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
)

// FeatureSource 按列名提供特征值
type FeatureSource interface {
	Value(column string) (float64, bool)
}

// Result 评分结果
type Result struct {
	Probability float64
	RiskScore   int
	Reasons     []model.Reason
}

// Scorer 线性模型评分
// z_i = (x_i - mean_i) / scale_i, logit = intercept + Σ w_i z_i
type Scorer struct {
	bundle *Bundle
	topK   int
}

// NewScorer 创建评分器
func NewScorer(bundle *Bundle, topK int) *Scorer {
	if topK <= 0 {
		topK = 3
	}
	return &Scorer{bundle: bundle, topK: topK}
}

// Bundle 返回模型包
func (s *Scorer) Bundle() *Bundle {
	return s.bundle
}

// Vectorize 严格按模型列顺序取值，缺列返回 SchemaMismatch
func (s *Scorer) Vectorize(src FeatureSource) ([]float64, error) {
	x := make([]float64, len(s.bundle.FeatureColumns))
	for i, col := range s.bundle.FeatureColumns {
		v, ok := src.Value(col)
		if !ok {
			metrics.RecordSchemaMismatch()
			return nil, apperrors.ErrSchemaMismatch.WithMessagef("feature column %q not available", col)
		}
		x[i] = v
	}
	return x, nil
}

// contributions 每列对 logit 的贡献
func (s *Scorer) contributions(x []float64) ([]float64, float64) {
	b := s.bundle
	contrib := make([]float64, len(x))
	logit := b.Intercept
	for i := range x {
		z := (x[i] - b.Mean[i]) / b.Scale[i]
		contrib[i] = b.Weights[i] * z
		logit += contrib[i]
	}
	return contrib, logit
}

// Score 返回欺诈概率与风险分
func (s *Scorer) Score(src FeatureSource) (float64, int, error) {
	x, err := s.Vectorize(src)
	if err != nil {
		return 0, 0, err
	}
	_, logit := s.contributions(x)
	p := Sigmoid(logit)
	return p, RiskScore(p), nil
}

// Explain 返回欺诈概率与贡献最大的 topK 个特征
// 按 |contribution| 降序，相同时按列序升序
func (s *Scorer) Explain(src FeatureSource, topK int) (float64, []model.Reason, error) {
	x, err := s.Vectorize(src)
	if err != nil {
		return 0, nil, err
	}
	contrib, logit := s.contributions(x)

	idx := make([]int, len(contrib))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(contrib[idx[a]]) > math.Abs(contrib[idx[b]])
	})

	if topK > len(idx) {
		topK = len(idx)
	}
	if topK < 0 {
		topK = 0
	}
	reasons := make([]model.Reason, 0, topK)
	for _, i := range idx[:topK] {
		reasons = append(reasons, model.Reason{
			Feature:      s.bundle.FeatureColumns[i],
			Value:        x[i],
			Contribution: contrib[i],
		})
	}
	return Sigmoid(logit), reasons, nil
}

// Evaluate 评分并给出默认条数的解释
func (s *Scorer) Evaluate(src FeatureSource) (*Result, error) {
	p, reasons, err := s.Explain(src, s.topK)
	if err != nil {
		return nil, err
	}
	return &Result{
		Probability: p,
		RiskScore:   RiskScore(p),
		Reasons:     reasons,
	}, nil
}

// Sigmoid 数值稳定的逻辑函数
func Sigmoid(logit float64) float64 {
	if logit >= 0 {
		return 1 / (1 + math.Exp(-logit))
	}
	e := math.Exp(logit)
	return e / (1 + e)
}

// RiskScore 概率转 0-100 风险分，四舍五入(半数向上)
func RiskScore(p float64) int {
	score := int(math.Floor(p*100 + 0.5))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
