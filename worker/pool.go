// Package worker 提供带屏障语义的有界并行执行池.
package worker

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"
	"github.com/wyfcoding/localvol/metrics"
)

// Pool 以固定并发度执行一批相互独立的任务, ForEach 返回即表示全部任务完成.
// 任务 panic 会在 ForEach 的调用方重新抛出.
type Pool struct {
	options *poolOptions
	tasks   prometheus.Counter
}

type poolOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Name    string
	Size    int
}

// Option 定义配置选项.
type Option func(*poolOptions)

// WithName 设置池名称.
func WithName(name string) Option {
	return func(o *poolOptions) {
		o.Name = name
	}
}

// WithSize 设置并发度, 小于等于 1 时在调用方协程内顺序执行.
func WithSize(size int) Option {
	return func(o *poolOptions) {
		o.Size = size
	}
}

// WithLogger 设置日志记录器.
func WithLogger(logger *slog.Logger) Option {
	return func(o *poolOptions) {
		o.Logger = logger
	}
}

// WithMetrics 注入指标采集器.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *poolOptions) {
		o.Metrics = m
	}
}

// NewPool 创建一个新的 worker 池.
func NewPool(opts ...Option) *Pool {
	options := &poolOptions{
		Name:   "default-pool",
		Size:   1,
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	p := &Pool{options: options}
	if options.Metrics != nil {
		p.tasks = options.Metrics.WorkerTasks.WithLabelValues(options.Name)
	}
	options.Logger.Debug("worker pool created", "name", options.Name, "size", options.Size)
	return p
}

// Size 返回并发度.
func (p *Pool) Size() int {
	return p.options.Size
}

// ForEach 对 [0, n) 的每个下标调用 fn, 等待全部完成后返回.
// ctx 取消后尚未开始的任务被跳过, 并返回 ctx.Err().
func (p *Pool) ForEach(ctx context.Context, n int, fn func(i int)) error {
	if n <= 0 {
		return ctx.Err()
	}
	if p.tasks != nil {
		defer p.tasks.Add(float64(n))
	}

	if p.options.Size <= 1 || n == 1 {
		for i := range n {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	wp := pool.New().WithMaxGoroutines(min(p.options.Size, n))
	for i := range n {
		if ctx.Err() != nil {
			break
		}
		wp.Go(func() {
			if ctx.Err() != nil {
				return
			}
			fn(i)
		})
	}
	wp.Wait()
	return ctx.Err()
}
