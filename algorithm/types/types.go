package types

// OptionType 定义期权类型。
type OptionType string

const (
	// OptionTypeCall 看涨期权。
	OptionTypeCall OptionType = "call"
	// OptionTypePut 看跌期权。
	OptionTypePut OptionType = "put"
)

// IsCall 是否为看涨期权。
func (t OptionType) IsCall() bool {
	return t == OptionTypeCall
}

// Valid 校验期权类型是否受支持。
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// OptionTypeOf 由布尔标志构造期权类型。
func OptionTypeOf(isCall bool) OptionType {
	if isCall {
		return OptionTypeCall
	}
	return OptionTypePut
}
