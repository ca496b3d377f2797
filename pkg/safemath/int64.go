// 文件: pkg/safemath/int64.go
// int64 checked 运算
//
// 【为什么不用裸 + - * /？】
// Go 的整数运算溢出时默默回绕 (wraparound)，
// 对账本/保证金这种钱相关的计算是灾难性的。
// 这里每个运算都带溢出检测，溢出即返回 ErrOverflow。

package safemath

import "math"

// =============================================================================
// 基础四则运算
// =============================================================================

// Add 加法，溢出返回 ErrOverflow
func Add(a, b int64) (int64, error) {
	sum := a + b
	// 同号相加变号 => 溢出
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub 减法，溢出返回 ErrOverflow
func Sub(a, b int64) (int64, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, ErrOverflow
	}
	return diff, nil
}

// Mul 乘法，溢出返回 ErrOverflow
func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	// MinInt64 * -1 是唯一除法检测不到的边界
	if a == math.MinInt64 || b == math.MinInt64 {
		if a == 1 {
			return b, nil
		}
		if b == 1 {
			return a, nil
		}
		return 0, ErrOverflow
	}
	prod := a * b
	if prod/b != a {
		return 0, ErrOverflow
	}
	return prod, nil
}

// Div 除法 (截断取整，同 Go 原生 /)
// 除零返回 ErrDivisionByZero，MinInt64 / -1 返回 ErrOverflow
func Div(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	if a == math.MinInt64 && b == -1 {
		return 0, ErrOverflow
	}
	return a / b, nil
}

// Neg 取反，-MinInt64 溢出
func Neg(a int64) (int64, error) {
	if a == math.MinInt64 {
		return 0, ErrOverflow
	}
	return -a, nil
}

// Abs 绝对值，|MinInt64| 溢出
func Abs(a int64) (int64, error) {
	if a < 0 {
		return Neg(a)
	}
	return a, nil
}

// =============================================================================
// 方向性取整除法
// =============================================================================

// FloorDiv 向负无穷取整的除法
//
// 与截断除法的区别只在负数:
//   FloorDiv(-7, 2) = -4   (截断是 -3)
//
// 风控中用于"保守低估"的场合 (未实现盈亏)。
func FloorDiv(a, b int64) (int64, error) {
	q, err := Div(a, b)
	if err != nil {
		return 0, err
	}
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q, nil
}

// CeilDiv 向正无穷取整的除法
//
//	CeilDiv(7, 2) = 4
//
// 风控中用于"保守高估"的场合 (名义敞口)。
func CeilDiv(a, b int64) (int64, error) {
	q, err := Div(a, b)
	if err != nil {
		return 0, err
	}
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q, nil
}

// Min 取小
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Max 取大
func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
