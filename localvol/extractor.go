package localvol

import "math"

// Sample 局部方差样本, 位于 (Time, Spot). 方差描述的是节点所在的一整步,
// Time 取该步的中点, Spot 取节点价格.
type Sample struct {
	Time     float64
	Spot     float64
	Variance float64
	Level    int
	Node     int
}

// Volatility 样本的局部波动率.
func (s Sample) Volatility() float64 { return math.Sqrt(s.Variance) }

// localVariance 单步条件方差换算为年化局部方差.
// 相对方差 v = E[(S'-F)^2]/F^2 对应对数正态步长上的 exp(sigma^2 dt)-1.
func localVariance(n Node, sd, sm, su, dt float64) float64 {
	f := n.Forward
	dd, dm, du := sd-f, sm-f, su-f
	v := (n.Up*du*du + n.Middle*dm*dm + n.Down*dd*dd) / (f * f)
	return math.Log1p(v) / dt
}

// extractLevel 从第 level 层 (非终端层) 提取样本. 默认跳过 level>=1 的上下边界节点;
// 分支概率经过修正的节点不反映市场价格, 总是跳过.
//
// 树带有对照树时, 节点方差按 BenchmarkVol^2 * (市场方差 / 对照方差) 换算,
// 以抵消离散格点本身带来的偏差; 对照节点被修正或方差非正时保留原值.
func extractLevel(tree *Tree, level int, includeBoundary bool) []Sample {
	nodes := tree.Levels[level]
	children := tree.Levels[level+1]
	t := 0.5 * (tree.Grid.Time(level) + tree.Grid.Time(level+1))
	dt := tree.Grid.Dt()

	var bench []Node
	if level < len(tree.Benchmark)-1 {
		bench = tree.Benchmark[level]
	}
	benchVar := tree.BenchmarkVol * tree.BenchmarkVol

	out := make([]Sample, 0, len(nodes))
	for j, n := range nodes {
		if !includeBoundary && level > 0 && (j == 0 || j == len(nodes)-1) {
			continue
		}
		if n.Repaired {
			continue
		}
		sd, sm, su := children[j].Spot, children[j+1].Spot, children[j+2].Spot
		v := localVariance(n, sd, sm, su, dt)
		if bench != nil && !bench[j].Repaired {
			if b := localVariance(bench[j], sd, sm, su, dt); b > 0 {
				v = benchVar * (v / b)
			}
		}
		out = append(out, Sample{
			Time:     t,
			Spot:     n.Spot,
			Variance: v,
			Level:    level,
			Node:     j,
		})
	}
	return out
}

// sampleCount 给定步数下最多提取的样本数; 被修正的节点会使实际数目更少.
func sampleCount(nSteps int, includeBoundary bool) int {
	if includeBoundary {
		return nSteps * nSteps
	}
	return (nSteps-1)*(nSteps-1) + 1
}
