// 文件: pkg/safemath/fixed.go
// 定点数运算 (先拓宽再乘，最后按刻度缩回)
//
// 【为什么要拓宽？】
// 两个 micro-unit 刻度的 int64 相乘，中间值可能到 126 bit，
// 直接乘会溢出。这里借助 math/big 做中间计算，
// 只在最终缩回 int64 时做一次溢出检查。
//
// 【取整方向是调用点策略】
// 敞口 (notional) 用 Ceil —— 风险永不低估；
// 未实现盈亏用 Floor —— 价值永不高估。
// 两个方向不可互换，也不可统一。

package safemath

import "math/big"

var (
	bigMaxInt64 = big.NewInt(1<<63 - 1)
	bigMinInt64 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 63))
)

// ToInt64 big.Int 收窄为 int64，超界返回 ErrOverflow
func ToInt64(x *big.Int) (int64, error) {
	if x.Cmp(bigMinInt64) < 0 || x.Cmp(bigMaxInt64) > 0 {
		return 0, ErrOverflow
	}
	return x.Int64(), nil
}

// FloorDivBig 任意精度向下取整除法
func FloorDivBig(num, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	n, d := num, den
	if d.Sign() < 0 {
		// 统一成正除数，floor 语义不变
		n = new(big.Int).Neg(n)
		d = new(big.Int).Neg(d)
	}
	q, m := new(big.Int).QuoRem(n, d, new(big.Int))
	if m.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}
	return q, nil
}

// CeilDivBig 任意精度向上取整除法
func CeilDivBig(num, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	n, d := num, den
	if d.Sign() < 0 {
		n = new(big.Int).Neg(n)
		d = new(big.Int).Neg(d)
	}
	q, m := new(big.Int).QuoRem(n, d, new(big.Int))
	if m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// MulFixedFloor 定点乘法: floor(a * b / scale)
//
// a, b 其一为刻度值 (如 micro-unit 价格)，scale 为刻度因子。
// 中间乘积在 big.Int 里算，不会丢精度；
// 只有最终结果超出 int64 才报 ErrOverflow。
func MulFixedFloor(a, b, scale int64) (int64, error) {
	if scale == 0 {
		return 0, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	q, err := FloorDivBig(prod, big.NewInt(scale))
	if err != nil {
		return 0, err
	}
	return ToInt64(q)
}

// MulFixedCeil 定点乘法: ceil(a * b / scale)
func MulFixedCeil(a, b, scale int64) (int64, error) {
	if scale == 0 {
		return 0, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	q, err := CeilDivBig(prod, big.NewInt(scale))
	if err != nil {
		return 0, err
	}
	return ToInt64(q)
}
