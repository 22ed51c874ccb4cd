package domain

import "errors"

// 领域错误定义
// 缺失持仓等可预期的空操作通过布尔返回值表达，不走错误路径，
// 便于风险监控循环对大量持仓做防御性调用。
var (
	ErrInvalidQuantity = errors.New("close quantity exceeds remaining position size")
	ErrInvalidSide     = errors.New("side must be LONG or SHORT")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidSize     = errors.New("quantity must be positive")
)
