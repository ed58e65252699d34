package localvol

import (
	"math"

	"github.com/wyfcoding/localvol/xerrors"
)

// TimeGrid 等距时间网格 t_0=0 < t_1 < ... < t_N=maxTime.
type TimeGrid struct {
	times []float64
	dt    float64
}

// NewTimeGrid 创建时间网格.
func NewTimeGrid(nSteps int, maxTime float64) (TimeGrid, error) {
	if nSteps < 1 || !(maxTime > 0) || math.IsInf(maxTime, 0) {
		return TimeGrid{}, xerrors.ErrInvalidGrid.Derive().
			WithContext("n_steps", nSteps).
			WithContext("max_time", maxTime)
	}
	dt := maxTime / float64(nSteps)
	times := make([]float64, nSteps+1)
	for i := range times {
		times[i] = float64(i) * dt
	}
	times[nSteps] = maxTime
	return TimeGrid{times: times, dt: dt}, nil
}

// Steps 步数 N.
func (g TimeGrid) Steps() int { return len(g.times) - 1 }

// Dt 步长.
func (g TimeGrid) Dt() float64 { return g.dt }

// Time 第 i 层时间.
func (g TimeGrid) Time(i int) float64 { return g.times[i] }

// MaxTime 网格终点.
func (g TimeGrid) MaxTime() float64 { return g.times[len(g.times)-1] }

// Times 返回全部时间的副本.
func (g TimeGrid) Times() []float64 {
	return append([]float64(nil), g.times...)
}

// IndexOf 返回与 t 重合的层序号, 不在网格上时返回 false.
func (g TimeGrid) IndexOf(t float64) (int, bool) {
	if g.dt == 0 {
		return 0, false
	}
	i := int(math.Round(t / g.dt))
	if i < 0 || i >= len(g.times) {
		return 0, false
	}
	if math.Abs(g.times[i]-t) > 1e-12*math.Max(1, t) {
		return 0, false
	}
	return i, true
}
