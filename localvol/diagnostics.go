package localvol

import (
	"cmp"
	"slices"
	"sync"

	"github.com/wyfcoding/localvol/xerrors"
)

// ViolationKind 非致命诊断的类别.
type ViolationKind string

const (
	// ViolationProbabilityOverride 分支概率无法求出 (NaN), 已替换为匹配远期的标准概率.
	ViolationProbabilityOverride ViolationKind = "probability_override"
	// ViolationProbabilityClamp 分支概率越界, 已投影到匹配远期的可行区间;
	// 远期落在子节点范围外时截断并归一化, 远期不再精确匹配.
	ViolationProbabilityClamp ViolationKind = "probability_clamp"
	// ViolationNonPositiveForward 节点远期非正.
	ViolationNonPositiveForward ViolationKind = "non_positive_forward"
	// ViolationPriceBounds 价格曲面给出的价格超出无套利边界.
	ViolationPriceBounds ViolationKind = "price_bounds"
	// ViolationReferenceVol 参考波动率无法取得, 使用了相邻节点的值.
	ViolationReferenceVol ViolationKind = "reference_vol_fallback"
)

// Diagnostic 一条非致命诊断. Level/Node 为 -1 表示与具体节点无关.
type Diagnostic struct {
	Kind    ViolationKind
	Level   int
	Node    int
	Time    float64
	Strike  float64
	Forward float64
	Value   float64
	// 修正前的原始概率.
	Up, Middle, Down float64
	Detail           string
}

// Err 把诊断转换为可记录或上报的错误, 匹配 xerrors.ErrArbitrageViolation.
func (d Diagnostic) Err() error {
	return xerrors.ErrArbitrageViolation.Derive().
		WithDetail("%s: %s", d.Kind, d.Detail).
		WithContext("level", d.Level).
		WithContext("node", d.Node).
		WithContext("time", d.Time).
		WithContext("strike", d.Strike).
		WithContext("value", d.Value)
}

// collector 并发安全地收集诊断.
type collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (c *collector) add(d Diagnostic) {
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// sorted 按 (层, 节点, 时间, 行权价, 类别) 排序后返回, 保证并行与串行结果一致.
func (c *collector) sorted() []Diagnostic {
	c.mu.Lock()
	out := append([]Diagnostic(nil), c.items...)
	c.mu.Unlock()
	slices.SortStableFunc(out, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Level, b.Level),
			cmp.Compare(a.Node, b.Node),
			cmp.Compare(a.Time, b.Time),
			cmp.Compare(a.Strike, b.Strike),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Value, b.Value),
		)
	})
	return out
}

// countByKind 按类别计数.
func countByKind(ds []Diagnostic) map[ViolationKind]int {
	out := make(map[ViolationKind]int)
	for _, d := range ds {
		out[d.Kind]++
	}
	return out
}
