package localvol

import (
	"context"
	"math"

	algomath "github.com/wyfcoding/localvol/algorithm/math"
	"github.com/wyfcoding/localvol/worker"
	"github.com/wyfcoding/localvol/xerrors"
)

// calibrator 逐层前向归纳: 用定价器给出的期权价格求每个节点的分支概率, 再传播 Arrow-Debreu 价格.
// benchmark 非空时, 在同一组节点上用常数波动率价格再校准一棵对照树.
type calibrator struct {
	grid      TimeGrid
	mkt       market
	oracle    OptionPriceOracle
	benchmark OptionPriceOracle
	lattice   *lattice
	pool      *worker.Pool
	report    reporter
}

// levelResult 一层校准的产出.
type levelResult struct {
	next      []Node
	benchNext []Node
}

// calibrateLevel 求第 level 层全部节点的分支概率, 返回第 level+1 层节点 (含 Arrow-Debreu 价格).
// 层内各节点相互独立, 可并行求解; 跨层严格串行.
func (c *calibrator) calibrateLevel(ctx context.Context, level int, nodes, bench []Node) (levelResult, error) {
	t0, t1 := c.grid.Time(level), c.grid.Time(level+1)
	growth := c.mkt.stepGrowth(t0, t1)
	discount := c.mkt.stepDiscount(t0, t1)

	for j := range nodes {
		nodes[j].Forward = nodes[j].Spot * growth
	}
	for j := range bench {
		bench[j].Forward = bench[j].Spot * growth
	}

	spots, err := c.lattice.nextSpots(level, nodes)
	if err != nil {
		return levelResult{}, err
	}

	prices, err := c.optionPrices(ctx, c.oracle, level, t1, spots)
	if err != nil {
		return levelResult{}, err
	}
	diags, err := c.solve(ctx, level, nodes, spots, prices, discount)
	if err != nil {
		return levelResult{}, err
	}
	for j, d := range diags {
		if d != nil {
			d.Level, d.Node, d.Time, d.Strike = level, j, t0, spots[j+1]
			c.report.report(*d)
		}
	}
	res := levelResult{next: propagate(level, nodes, spots, discount)}

	if c.benchmark != nil && bench != nil {
		bp, err := c.optionPrices(ctx, c.benchmark, level, t1, spots)
		if err != nil {
			return levelResult{}, err
		}
		if _, err := c.solve(ctx, level, bench, spots, bp, discount); err != nil {
			return levelResult{}, err
		}
		res.benchNext = propagate(level, bench, spots, discount)
	}
	return res, nil
}

// optionPrices 节点 j 使用行权价 spots[j+1], 上半部分用看涨, 下半部分用看跌.
func (c *calibrator) optionPrices(ctx context.Context, oracle OptionPriceOracle, level int, t float64, spots []float64) ([]float64, error) {
	size := len(spots) - 2
	prices := make([]float64, size)
	priceErrs := make([]error, size)
	if err := c.pool.ForEach(ctx, size, func(j int) {
		prices[j], priceErrs[j] = oracle.Price(t, spots[j+1], j >= level)
	}); err != nil {
		return nil, err
	}
	for j, e := range priceErrs {
		if e != nil {
			return nil, xerrors.Wrap(e, xerrors.ErrInvalidArg, "option price oracle failed").
				WithContext("level", level).
				WithContext("node", j)
		}
	}
	return prices, nil
}

// solve 由期权价格求分支概率并写回 nodes, 返回每个被修正节点的诊断 (位置由调用方补全).
func (c *calibrator) solve(ctx context.Context, level int, nodes []Node, spots, prices []float64, discount float64) ([]*Diagnostic, error) {
	size := len(nodes)

	// 各节点所需的部分和按固定顺序预先累加, 保证并行结果与串行逐位一致.
	aboveQ := make([]float64, size)
	aboveQF := make([]float64, size)
	for j := size - 2; j >= 0; j-- {
		aboveQ[j] = aboveQ[j+1] + nodes[j+1].StatePrice
		aboveQF[j] = aboveQF[j+1] + nodes[j+1].StatePrice*nodes[j+1].Forward
	}
	belowQ := make([]float64, size)
	belowQF := make([]float64, size)
	for j := 1; j < size; j++ {
		belowQ[j] = belowQ[j-1] + nodes[j-1].StatePrice
		belowQF[j] = belowQF[j-1] + nodes[j-1].StatePrice*nodes[j-1].Forward
	}

	diags := make([]*Diagnostic, size)
	if err := c.pool.ForEach(ctx, size, func(j int) {
		n := &nodes[j]
		sd, sm, su := spots[j], spots[j+1], spots[j+2]
		var p, q float64
		if j >= level {
			num := prices[j]/discount - (aboveQF[j] - sm*aboveQ[j])
			p = num / (n.StatePrice * (su - sm))
			q = (n.Forward - sm - p*(su-sm)) / (sd - sm)
		} else {
			num := prices[j]/discount - (sm*belowQ[j] - belowQF[j])
			q = num / (n.StatePrice * (sm - sd))
			p = (n.Forward - sm + q*(sm-sd)) / (su - sm)
		}
		up, mid, down, d := resolveProbabilities(p, q, n.Forward, sd, sm, su)
		n.Up, n.Middle, n.Down = up, mid, down
		n.Repaired = d != nil
		diags[j] = d
	}); err != nil {
		return nil, err
	}
	return diags, nil
}

// propagate 把第 level 层的 Arrow-Debreu 价格沿分支概率传到下一层.
func propagate(level int, nodes []Node, spots []float64, discount float64) []Node {
	next := make([]Node, len(spots))
	for k := range next {
		next[k] = Node{Level: level + 1, Index: k, Spot: spots[k]}
	}
	for j, n := range nodes {
		next[j].StatePrice += discount * n.StatePrice * n.Down
		next[j+1].StatePrice += discount * n.StatePrice * n.Middle
		next[j+2].StatePrice += discount * n.StatePrice * n.Up
	}
	return next
}

// resolveProbabilities 校验原始概率. 越界时在保持远期匹配的前提下把向上概率投影到可行区间
// [max(0, (F-sm)/(su-sm)), (F-sd)/(su-sd)], 即改动最小的一组合法概率;
// 原始值为 NaN 时使用标准的远期匹配替代值; 远期落在子节点范围外时截断并归一化.
// 返回的诊断只填写类别与原始值, 由调用方补全位置.
func resolveProbabilities(p, q, forward, sd, sm, su float64) (up, mid, down float64, d *Diagnostic) {
	m := 1 - p - q
	if validProbability(p) && validProbability(q) && validProbability(m) {
		return p, m, q, nil
	}

	d = &Diagnostic{Forward: forward, Up: p, Middle: m, Down: q, Value: forward}
	switch {
	case !(forward > 0):
		d.Kind = ViolationNonPositiveForward
		d.Detail = "forward is not positive, all weight moved to the lowest child"
		return 0, 0, 1, d
	case forward < sd || forward > su:
		d.Kind = ViolationProbabilityClamp
		d.Detail = "forward outside child range"
		up, mid, down = clampProbabilities(p, m, q, forward, sd, su)
		return up, mid, down, d
	case math.IsNaN(p):
		d.Kind = ViolationProbabilityOverride
		d.Detail = "probabilities replaced by forward-matching values"
		if forward >= sm {
			up = 0.5 * ((forward-sm)/(su-sm) + (forward-sd)/(su-sd))
			down = 0.5 * (su - forward) / (su - sd)
		} else {
			down = 0.5 * ((su-forward)/(su-sd) + (sm-forward)/(sm-sd))
			up = 0.5 * (forward - sd) / (su - sd)
		}
		return up, 1 - up - down, down, d
	}

	lo := math.Max(0, (forward-sm)/(su-sm))
	hi := (forward - sd) / (su - sd)
	up = algomath.Clamp(p, lo, hi)
	down = (forward - sm - up*(su-sm)) / (sd - sm)
	down = algomath.Clamp(down, 0, 1)
	mid = math.Max(0, 1-up-down)
	d.Kind = ViolationProbabilityClamp
	d.Detail = "probabilities projected onto the forward-matching range"
	return up, mid, down, d
}

func validProbability(x float64) bool {
	return x >= 0 && x <= 1 && !math.IsNaN(x)
}

// clampProbabilities 截断到 [0,1] 后归一化; 全部为零时把权重放在最近的子节点.
func clampProbabilities(p, m, q, forward, sd, su float64) (up, mid, down float64) {
	clean := func(x float64) float64 {
		if math.IsNaN(x) {
			return 0
		}
		return algomath.Clamp(x, 0, 1)
	}
	up, mid, down = clean(p), clean(m), clean(q)
	sum := up + mid + down
	if sum > 0 {
		return up / sum, mid / sum, down / sum
	}
	if forward >= su {
		return 1, 0, 0
	}
	if forward <= sd {
		return 0, 0, 1
	}
	return 0, 1, 0
}
