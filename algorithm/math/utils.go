package math

import (
	"math"
)

// 有限差分默认相对步长.
const (
	DefaultRelativeBump = 1e-4
	MinAbsoluteBump     = 1e-6
)

// Clamp 将 x 截断到 [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// FuzzyEquals 判断两数在绝对容差内相等.
func FuzzyEquals(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// IsFinite 判断是否为有限数.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Bump 返回 x 处的差分步长, 按 x 的量级缩放.
func Bump(x float64) float64 {
	return math.Max(math.Abs(x)*DefaultRelativeBump, MinAbsoluteBump)
}

// FirstDerivative 中心差分一阶导数.
// lower 不为 NaN 时, 若 x-h 低于 lower 则退化为前向差分.
func FirstDerivative(f func(float64) float64, x, h, lower float64) float64 {
	if !math.IsNaN(lower) && x-h < lower {
		return (f(x+h) - f(x)) / h
	}
	return (f(x+h) - f(x-h)) / (2 * h)
}

// SecondDerivative 中心差分二阶导数.
func SecondDerivative(f func(float64) float64, x, h, lower float64) float64 {
	if !math.IsNaN(lower) && x-h < lower {
		return (f(x+2*h) - 2*f(x+h) + f(x)) / (h * h)
	}
	return (f(x+h) - 2*f(x) + f(x-h)) / (h * h)
}
