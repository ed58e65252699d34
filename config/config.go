// Package config 负责加载、校验与热更新局部波动率计算所需的配置.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wyfcoding/localvol/interpolation"
	"github.com/wyfcoding/localvol/logging"
)

// Config 全局顶级配置结构.
type Config struct {
	Version     string            `mapstructure:"version"     toml:"version"`
	Calibration CalibrationConfig `mapstructure:"calibration" toml:"calibration"`
	Market      MarketConfig      `mapstructure:"market"      toml:"market"`
	Report      ReportConfig      `mapstructure:"report"      toml:"report"`
	Log         LogConfig         `mapstructure:"log"         toml:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"     toml:"metrics"`
	Tracing     TracingConfig     `mapstructure:"tracing"     toml:"tracing"`
}

// CalibrationConfig 隐含三叉树校准参数.
type CalibrationConfig struct {
	NSteps          int     `mapstructure:"n_steps"          toml:"n_steps"          validate:"min=1"`
	MaxTime         float64 `mapstructure:"max_time"         toml:"max_time"         validate:"gt=0"`
	Parallelism     int     `mapstructure:"parallelism"      toml:"parallelism"      validate:"min=0"`
	IncludeBoundary bool    `mapstructure:"include_boundary" toml:"include_boundary"`
	ClampPrices     bool    `mapstructure:"clamp_prices"     toml:"clamp_prices"`

	// DisableBenchmarkCorrection 关闭常数波动率对照树修正.
	DisableBenchmarkCorrection bool   `mapstructure:"disable_benchmark_correction" toml:"disable_benchmark_correction"`
	TimeInterpolator           string `mapstructure:"time_interpolator"            toml:"time_interpolator"            validate:"omitempty,interpolator"`
	StrikeInterpolator         string `mapstructure:"strike_interpolator"          toml:"strike_interpolator"          validate:"omitempty,interpolator"`
	LeftExtrapolator           string `mapstructure:"left_extrapolator"            toml:"left_extrapolator"            validate:"omitempty,extrapolator"`
	RightExtrapolator          string `mapstructure:"right_extrapolator"           toml:"right_extrapolator"           validate:"omitempty,extrapolator"`
}

// MarketConfig 市场数据: 期限、行权价与对应的隐含波动率或看涨期权价格 (按位置一一对应).
type MarketConfig struct {
	Source             string    `mapstructure:"source"              toml:"source"              validate:"oneof=implied_vol price"`
	Spot               float64   `mapstructure:"spot"                toml:"spot"                validate:"gt=0"`
	FinancingRate      float64   `mapstructure:"financing_rate"      toml:"financing_rate"`
	DividendRate       float64   `mapstructure:"dividend_rate"       toml:"dividend_rate"`
	Times              []float64 `mapstructure:"times"               toml:"times"               validate:"required,min=1,dive,gt=0"`
	Strikes            []float64 `mapstructure:"strikes"             toml:"strikes"             validate:"required,min=1,dive,gt=0"`
	Values             []float64 `mapstructure:"values"              toml:"values"              validate:"required,min=1,dive,gte=0"`
	TimeInterpolator   string    `mapstructure:"time_interpolator"   toml:"time_interpolator"   validate:"omitempty,interpolator"`
	StrikeInterpolator string    `mapstructure:"strike_interpolator" toml:"strike_interpolator" validate:"omitempty,interpolator"`
	Extrapolator       string    `mapstructure:"extrapolator"        toml:"extrapolator"        validate:"omitempty,extrapolator"`
}

// ReportConfig 命令行报表的查询网格, 行权价以现价倍数表示.
type ReportConfig struct {
	Times     []float64 `mapstructure:"times"     toml:"times"     validate:"dive,gt=0"`
	Moneyness []float64 `mapstructure:"moneyness" toml:"moneyness" validate:"dive,gt=0"`
	Dupire    bool      `mapstructure:"dupire"    toml:"dupire"`
	Precision int32     `mapstructure:"precision" toml:"precision" validate:"min=0,max=12"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"        toml:"file"`
	Console    bool   `mapstructure:"console"     toml:"console"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"gte=0,lte=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// LoggingConfig 转换为日志包的配置.
func (c LogConfig) LoggingConfig(service, module string) logging.Config {
	return logging.Config{
		Service:    service,
		Module:     module,
		Level:      c.Level,
		File:       c.File,
		Console:    c.Console,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// GridInterpolator 构造输出曲面使用的二维插值器.
func (c CalibrationConfig) GridInterpolator() (*interpolation.GridInterpolator2D, error) {
	return gridInterpolator(c.TimeInterpolator, c.StrikeInterpolator, c.LeftExtrapolator, c.RightExtrapolator)
}

// GridInterpolator 构造市场曲面使用的二维插值器, 左右外推相同.
func (c MarketConfig) GridInterpolator() (*interpolation.GridInterpolator2D, error) {
	return gridInterpolator(c.TimeInterpolator, c.StrikeInterpolator, c.Extrapolator, c.Extrapolator)
}

func gridInterpolator(timeName, strikeName, leftName, rightName string) (*interpolation.GridInterpolator2D, error) {
	ti, err := interpolation.ParseInterpolator(timeName)
	if err != nil {
		return nil, err
	}
	si, err := interpolation.ParseInterpolator(strikeName)
	if err != nil {
		return nil, err
	}
	left, err := interpolation.ParseExtrapolator(leftName)
	if err != nil {
		return nil, err
	}
	right, err := interpolation.ParseExtrapolator(rightName)
	if err != nil {
		return nil, err
	}
	return interpolation.NewGridInterpolator2D(
		interpolation.Combine(ti, left, right),
		interpolation.Combine(si, left, right),
	), nil
}

var (
	vInstance = viper.New()
	onReload  []func(*Config)
	hookMu    sync.Mutex
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	hookMu.Lock()
	defer hookMu.Unlock()
	onReload = append(onReload, hook)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "dev")
	v.SetDefault("calibration.n_steps", 20)
	v.SetDefault("calibration.max_time", 1.0)
	v.SetDefault("calibration.parallelism", 1)
	v.SetDefault("calibration.time_interpolator", "TimeSquare")
	v.SetDefault("calibration.strike_interpolator", "Linear")
	v.SetDefault("calibration.left_extrapolator", "Flat")
	v.SetDefault("calibration.right_extrapolator", "Flat")
	v.SetDefault("market.source", "implied_vol")
	v.SetDefault("market.time_interpolator", "Linear")
	v.SetDefault("market.strike_interpolator", "NaturalSpline")
	v.SetDefault("market.extrapolator", "Linear")
	v.SetDefault("report.precision", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("metrics.port", "9090")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.service_name", "localvol")
	v.SetDefault("tracing.sampler_ratio", 1.0)
}

// newValidator 注册插值器与外推器名称的自定义校验规则.
func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("interpolator", func(fl validator.FieldLevel) bool {
		_, err := interpolation.ParseInterpolator(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("extrapolator", func(fl validator.FieldLevel) bool {
		_, err := interpolation.ParseExtrapolator(fl.Field().String())
		return err == nil
	})
	return validate
}

// Validate 校验配置, 包括字段规则与跨字段约束.
func Validate(c *Config) error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if len(c.Market.Strikes) != len(c.Market.Times) || len(c.Market.Values) != len(c.Market.Times) {
		return fmt.Errorf("config validation failed: market.times/strikes/values lengths differ (%d/%d/%d)",
			len(c.Market.Times), len(c.Market.Strikes), len(c.Market.Values))
	}
	return nil
}

// Load 读取 TOML 配置文件, 叠加 APP_ 前缀的环境变量, 校验后启用文件监听热更新.
func Load(path string) (*Config, error) {
	vInstance.SetConfigFile(path)
	vInstance.SetConfigType("toml")

	vInstance.SetEnvPrefix("APP")
	vInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vInstance.AutomaticEnv()
	setDefaults(vInstance)

	if err := vInstance.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	conf := new(Config)
	if err := vInstance.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := Validate(conf); err != nil {
		return nil, err
	}

	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		next := new(Config)
		if err := vInstance.Unmarshal(next); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if err := Validate(next); err != nil {
			slog.Error("reload config validation failed", "error", err)
			return
		}

		logging.SetLevel(next.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")

		hookMu.Lock()
		hooks := append([]func(*Config){}, onReload...)
		hookMu.Unlock()
		for _, hook := range hooks {
			hook(next)
		}
	})

	return conf, nil
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}

	mask(configMap)

	slog.Info("current effective configuration", "config", configMap)
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "token", "endpoint"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}
		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}

// GetViper 返回底层的 Viper 实例.
func GetViper() *viper.Viper {
	return vInstance
}
