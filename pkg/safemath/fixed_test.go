package safemath

import (
	"errors"
	"math"
	"math/big"
	"testing"
)

func TestMulFixed(t *testing.T) {
	const scale = 1_000_000

	// 10 单位 * 价格 100 (micro 刻度) => 1000
	if v, err := MulFixedCeil(10_000_000, 100_000_000, scale); err != nil || v != 1_000_000_000 {
		t.Fatalf("MulFixedCeil = %d, %v", v, err)
	}

	// 不整除时，两个方向差 1
	f, err := MulFixedFloor(3, 500_001, scale)
	if err != nil || f != 1 {
		t.Errorf("MulFixedFloor = %d, %v; want 1", f, err)
	}
	c, err := MulFixedCeil(3, 500_001, scale)
	if err != nil || c != 2 {
		t.Errorf("MulFixedCeil = %d, %v; want 2", c, err)
	}

	// 负数向下取整：floor(-1.500003) = -2
	f, err = MulFixedFloor(-3, 500_001, scale)
	if err != nil || f != -2 {
		t.Errorf("MulFixedFloor(neg) = %d, %v; want -2", f, err)
	}
	c, err = MulFixedCeil(-3, 500_001, scale)
	if err != nil || c != -1 {
		t.Errorf("MulFixedCeil(neg) = %d, %v; want -1", c, err)
	}
}

func TestMulFixedOverflow(t *testing.T) {
	const scale = 1_000_000
	// 中间值远超 int64，但缩回后仍超界 => ErrOverflow
	if _, err := MulFixedCeil(math.MaxInt64, math.MaxInt64, scale); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	// 中间值超 int64、缩回后在界内 => 正常返回
	v, err := MulFixedFloor(math.MaxInt64, 1_000_000, scale)
	if err != nil || v != math.MaxInt64 {
		t.Errorf("MulFixedFloor = %d, %v", v, err)
	}
}

func TestBigDiv(t *testing.T) {
	if _, err := FloorDivBig(big.NewInt(1), big.NewInt(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}

	q, err := FloorDivBig(big.NewInt(-7), big.NewInt(2))
	if err != nil || q.Int64() != -4 {
		t.Errorf("FloorDivBig(-7,2) = %v, %v", q, err)
	}
	q, err = CeilDivBig(big.NewInt(-7), big.NewInt(-2))
	if err != nil || q.Int64() != 4 {
		t.Errorf("CeilDivBig(-7,-2) = %v, %v", q, err)
	}
}

func TestToInt64(t *testing.T) {
	over := new(big.Int).Add(big.NewInt(math.MaxInt64), big.NewInt(1))
	if _, err := ToInt64(over); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	if v, err := ToInt64(big.NewInt(math.MinInt64)); err != nil || v != math.MinInt64 {
		t.Errorf("ToInt64(min) = %d, %v", v, err)
	}
}
