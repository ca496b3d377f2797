// 文件: pkg/safemath/errors.go
// 算术错误定义
//
// 金融计算里，溢出和除零都必须是"显式失败"：
// 宁可让这一次计算报错，也不能让错误的数字流进风控决策。

package safemath

import "errors"

var (
	// ErrOverflow 整数溢出
	// 任何一步 checked 运算超出 int64 范围时返回
	ErrOverflow = errors.New("safemath: integer overflow")

	// ErrDivisionByZero 除零
	ErrDivisionByZero = errors.New("safemath: division by zero")
)
