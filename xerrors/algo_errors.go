package xerrors

var (
	// ErrEmptyData 输入数据为空。
	ErrEmptyData = New(ErrInvalidArg, 400001, "empty data", "input data must not be empty", nil)
	// ErrInvalidInput 输入格式错误。
	ErrInvalidInput = New(ErrInvalidArg, 400002, "invalid input", "check your input parameters", nil)
	// ErrInvalidOptionType 无效的期权类型。
	ErrInvalidOptionType = New(ErrInvalidArg, 400004, "invalid option type", "supported types: call, put", nil)
	// ErrInvalidConfig 配置错误。
	ErrInvalidConfig = New(ErrInvalidArg, 400005, "invalid config", "check calibration configuration", nil)
	// ErrDimMismatch 维度不匹配.
	ErrDimMismatch = New(ErrInvalidArg, 400007, "dimension mismatch", "coordinate and value arrays differ in length", nil)
	// ErrNotIncreasing 节点坐标未严格递增.
	ErrNotIncreasing = New(ErrInvalidArg, 400019, "nodes not strictly increasing", "interpolation nodes must be strictly increasing", nil)
	// ErrInvalidGrid 时间网格参数错误.
	ErrInvalidGrid = New(ErrInvalidArg, 400020, "invalid time grid", "nSteps must be >= 1 and maxTime > 0", nil)
	// ErrNegativePrice 市场曲面给出负价格或 NaN.
	ErrNegativePrice = New(ErrInvalidArg, 400021, "invalid market price", "surface produced a negative or NaN value", ErrInvalidInput)
	// ErrMathConvergence 数学计算未收敛。
	ErrMathConvergence = New(ErrInternal, 500002, "math convergence failed", "algorithm failed to converge", nil)
	// ErrArbitrageViolation 转移概率越界或远期价格非正.
	ErrArbitrageViolation = New(ErrArbitrage, 409001, "arbitrage violation", "transition probabilities outside [0,1] or non-positive forward", nil)
	// ErrInterpolation 插值器无法拟合给定节点.
	ErrInterpolation = New(ErrInterp, 422001, "interpolation failure", "interpolator rejected the nodal points", nil)
)
