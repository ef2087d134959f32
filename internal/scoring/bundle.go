// Package scoring 模型包加载、线性模型评分与决策分级
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// Bundle 训练产物：特征列顺序、标准化参数、逻辑回归权重
// 加载后只读，可并发访问
type Bundle struct {
	ModelVersion   string    `json:"model_version" yaml:"model_version"`
	FeatureColumns []string  `json:"feature_columns" yaml:"feature_columns"`
	Mean           []float64 `json:"scaler_mean" yaml:"scaler_mean"`
	Scale          []float64 `json:"scaler_scale" yaml:"scaler_scale"`
	Weights        []float64 `json:"coefficients" yaml:"coefficients"`
	Intercept      float64   `json:"intercept" yaml:"intercept"`
}

// Validate 校验各数组长度一致且标准化参数可用
func (b *Bundle) Validate() error {
	n := len(b.FeatureColumns)
	if n == 0 {
		return fmt.Errorf("bundle has no feature columns")
	}
	if len(b.Mean) != n || len(b.Scale) != n || len(b.Weights) != n {
		return fmt.Errorf("bundle arrays disagree: columns=%d mean=%d scale=%d weights=%d",
			n, len(b.Mean), len(b.Scale), len(b.Weights))
	}
	seen := make(map[string]struct{}, n)
	for i, col := range b.FeatureColumns {
		if _, dup := seen[col]; dup {
			return fmt.Errorf("duplicate feature column %q", col)
		}
		seen[col] = struct{}{}
		if b.Scale[i] == 0 || math.IsNaN(b.Scale[i]) || math.IsInf(b.Scale[i], 0) {
			return fmt.Errorf("invalid scale for column %q: %v", col, b.Scale[i])
		}
		if math.IsNaN(b.Mean[i]) || math.IsNaN(b.Weights[i]) {
			return fmt.Errorf("NaN parameter for column %q", col)
		}
	}
	if math.IsNaN(b.Intercept) {
		return fmt.Errorf("intercept is NaN")
	}
	return nil
}

// ParseBundle 解析模型包，format 为 json 或 yaml
func ParseBundle(data []byte, format string) (*Bundle, error) {
	var b Bundle
	var err error
	switch strings.ToLower(format) {
	case "json":
		err = json.Unmarshal(data, &b)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &b)
	default:
		return nil, apperrors.ErrModelUnavailable.WithMessagef("unsupported bundle format %q", format)
	}
	if err != nil {
		return nil, apperrors.WrapWithCause(apperrors.ErrModelUnavailable, err, "decode bundle")
	}
	if err := b.Validate(); err != nil {
		return nil, apperrors.WrapWithCause(apperrors.ErrModelUnavailable, err, "invalid bundle")
	}
	return &b, nil
}

// LoadFile 从文件读取模型包，按扩展名选择格式
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapWithCause(apperrors.ErrModelUnavailable, err, "read bundle %s", path)
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	return ParseBundle(data, format)
}

// bundleLoader 单次加载状态
type bundleLoader struct {
	once   sync.Once
	bundle *Bundle
	err    error
}

var (
	loaderMu sync.Mutex
	loader   = &bundleLoader{}
)

// Load 进程级单例，首次调用时从 path 加载，之后忽略 path 直接返回
func Load(path string) (*Bundle, error) {
	loaderMu.Lock()
	l := loader
	loaderMu.Unlock()

	l.once.Do(func() {
		l.bundle, l.err = LoadFile(path)
		if l.err != nil {
			logger.Error("failed to load model bundle", "path", path, "error", l.err)
			metrics.SetModelBundleLoaded(false)
			return
		}
		logger.Info("model bundle loaded",
			"path", path,
			"model_version", l.bundle.ModelVersion,
			"columns", len(l.bundle.FeatureColumns),
		)
		metrics.SetModelBundleLoaded(true)
	})
	return l.bundle, l.err
}

// Reset 丢弃已加载的模型包，仅用于测试
func Reset() {
	loaderMu.Lock()
	loader = &bundleLoader{}
	loaderMu.Unlock()
	metrics.SetModelBundleLoaded(false)
}
