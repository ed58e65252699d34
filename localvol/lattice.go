package localvol

import (
	"math"

	"github.com/wyfcoding/localvol/algorithm/finance"
	algomath "github.com/wyfcoding/localvol/algorithm/math"
	"github.com/wyfcoding/localvol/algorithm/types"
	"github.com/wyfcoding/localvol/xerrors"
)

const (
	minReferenceVol = 1e-3
	maxReferenceVol = 3.0
)

// Node 三叉树节点. 第 n 层有 2n+1 个节点, Index 从下到上递增.
// 节点 j 分支到下一层的 j (Down), j+1 (Middle), j+2 (Up).
type Node struct {
	Level      int
	Index      int
	Spot       float64
	StatePrice float64
	Forward    float64
	Up         float64
	Middle     float64
	Down       float64
	// Repaired 分支概率不是由期权价格直接解出的, 而是经过修正.
	Repaired bool
}

// Tree 校准后的隐含三叉树. 终端层节点没有分支概率.
// Benchmark 是同一网格上按常数波动率 BenchmarkVol 校准的对照树, 未启用基准修正时为空.
type Tree struct {
	Grid         TimeGrid
	Levels       [][]Node
	Benchmark    [][]Node
	BenchmarkVol float64
}

// Level 返回第 n 层节点.
func (t *Tree) Level(n int) []Node { return t.Levels[n] }

// StatePriceSum 第 n 层 Arrow-Debreu 价格之和.
func (t *Tree) StatePriceSum(n int) float64 {
	s := 0.0
	for _, node := range t.Levels[n] {
		s += node.StatePrice
	}
	return s
}

// weightedForward 第 n 层按 Arrow-Debreu 价格加权的节点远期.
func (t *Tree) weightedForward(n int) float64 {
	var weighted, total float64
	for _, node := range t.Levels[n] {
		weighted += node.StatePrice * node.Forward
		total += node.StatePrice
	}
	return weighted / total
}

// logSpacing 相邻节点的对数间距.
func logSpacing(vol, dt float64) float64 {
	return vol * math.Sqrt(2*dt)
}

// lattice 负责确定每层节点位置.
type lattice struct {
	grid       TimeGrid
	mkt        market
	oracle     OptionPriceOracle
	hint       VolatilityHint
	defaultVol float64
	lowVol     float64
	highVol    float64
	bs         *finance.BlackScholesCalculator
	report     reporter
}

func newLattice(grid TimeGrid, mkt market, oracle OptionPriceOracle, defaultVol float64, report reporter) *lattice {
	l := &lattice{
		grid:       grid,
		mkt:        mkt,
		oracle:     oracle,
		defaultVol: defaultVol,
		lowVol:     defaultVol,
		highVol:    defaultVol,
		bs:         finance.NewBlackScholesCalculator(),
		report:     report,
	}
	if h, ok := oracle.(VolatilityHint); ok {
		l.hint = h
	}
	return l
}

// referenceVol 返回 (t, strike) 处的参考波动率; 无法取得时返回 false.
// 致命的输入错误 (如曲面返回 NaN) 原样返回.
func (l *lattice) referenceVol(t, strike float64) (float64, bool, error) {
	var vol float64
	if l.hint != nil {
		v, err := l.hint.ReferenceVolatility(t, strike)
		if err != nil {
			return 0, false, err
		}
		vol = v
	} else {
		isCall := strike >= l.mkt.forward(t)
		price, err := l.oracle.Price(t, strike, isCall)
		if err != nil {
			return 0, false, err
		}
		v, err := l.bs.ImpliedVolatility(types.OptionTypeOf(isCall), l.mkt.spot, strike, t, l.mkt.rate(t), l.mkt.dividend(t), price)
		if err != nil {
			return 0, false, nil
		}
		vol = v
	}
	if !(vol > 0) || !algomath.IsFinite(vol) {
		return 0, false, nil
	}
	return algomath.Clamp(vol, minReferenceVol, maxReferenceVol), true, nil
}

// benchmarkVol 对照树使用的常数波动率: 最后期限处远期平值的参考波动率.
func (l *lattice) benchmarkVol() (float64, error) {
	t := l.grid.MaxTime()
	f := l.mkt.forward(t)
	vol, ok, err := l.referenceVol(t, f)
	if err != nil {
		return 0, err
	}
	if !ok {
		l.fallback(-1, -1, t, f, l.defaultVol)
		return l.defaultVol, nil
	}
	return vol, nil
}

// nextSpots 确定第 level+1 层的 2(level+1)+1 个节点.
// 内部节点依次取第 level 层各节点的远期, 即每个节点的中间子节点就是它自己的远期;
// 中心节点因此等于 Arrow-Debreu 加权远期. 只有新增的最上与最下节点按参考波动率向外展开.
func (l *lattice) nextSpots(level int, nodes []Node) ([]float64, error) {
	t := l.grid.Time(level + 1)
	dt := l.grid.Dt()

	size := len(nodes) + 2
	spots := make([]float64, size)
	for j, n := range nodes {
		if !(n.Forward > 0) || !algomath.IsFinite(n.Forward) {
			return nil, xerrors.ErrInvalidInput.Derive().
				WithDetail("node forward is not positive").
				WithContext("level", level).
				WithContext("node", j).
				WithContext("value", n.Forward)
		}
		spots[j+1] = n.Forward
	}

	low, err := l.edgeVol(level+1, 0, t, spots[1], &l.lowVol)
	if err != nil {
		return nil, err
	}
	spots[0] = spots[1] * math.Exp(-logSpacing(low, dt))

	high, err := l.edgeVol(level+1, size-1, t, spots[size-2], &l.highVol)
	if err != nil {
		return nil, err
	}
	spots[size-1] = spots[size-2] * math.Exp(logSpacing(high, dt))
	return spots, nil
}

// edgeVol 取边界展开用的参考波动率, 取不到时沿用该侧上一层的值.
func (l *lattice) edgeVol(level, node int, t, strike float64, last *float64) (float64, error) {
	vol, ok, err := l.referenceVol(t, strike)
	if err != nil {
		return 0, err
	}
	if !ok {
		l.fallback(level, node, t, strike, *last)
		return *last, nil
	}
	*last = vol
	return vol, nil
}

func (l *lattice) fallback(level, node int, t, strike, used float64) {
	l.report.report(Diagnostic{
		Kind:   ViolationReferenceVol,
		Level:  level,
		Node:   node,
		Time:   t,
		Strike: strike,
		Value:  used,
		Detail: "reference volatility unavailable",
	})
}
