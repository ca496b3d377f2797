package liquidation

import (
	"math"
	"testing"

	"riskon.com/pkg/margin"
)

// =============================================================================
// RiskLevel 测试
// =============================================================================

func TestRiskLevel_String(t *testing.T) {
	tests := []struct {
		level    RiskLevel
		expected string
	}{
		{RiskLevelSafe, "SAFE"},
		{RiskLevelWarning, "WARNING"},
		{RiskLevelDanger, "DANGER"},
		{RiskLevelCritical, "CRITICAL"},
		{RiskLevelLiquidate, "LIQUIDATE"},
		{RiskLevel(99), "UNKNOWN"}, // 未知等级
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.expected {
				t.Errorf("RiskLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
			}
		})
	}
}

// =============================================================================
// CalculateRiskLevel 测试
// =============================================================================

func TestCalculateRiskLevel(t *testing.T) {
	// 阈值:
	//   Safe:      < 0.70
	//   Warning:   0.70 ~ <0.80
	//   Danger:    0.80 ~ <0.90
	//   Critical:  0.90 ~ <1.00
	//   Liquidate: >= 1.00
	tests := []struct {
		name     string
		ratio    float64
		expected RiskLevel
	}{
		{"Safe - 0%", 0.0, RiskLevelSafe},
		{"Safe - 69.9%", 0.699, RiskLevelSafe},
		{"Warning - exactly 70%", 0.70, RiskLevelWarning},
		{"Warning - 79.9%", 0.799, RiskLevelWarning},
		{"Danger - exactly 80%", 0.80, RiskLevelDanger},
		{"Danger - 89.9%", 0.899, RiskLevelDanger},
		{"Critical - exactly 90%", 0.90, RiskLevelCritical},
		{"Critical - 99.9%", 0.999, RiskLevelCritical},
		{"Liquidate - exactly 100%", 1.00, RiskLevelLiquidate},
		{"Liquidate - 200%", 2.00, RiskLevelLiquidate},
		{"Liquidate - Inf", math.Inf(1), RiskLevelLiquidate},
		{"Safe - negative", -0.5, RiskLevelSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateRiskLevel(tt.ratio)
			if got != tt.expected {
				t.Errorf("CalculateRiskLevel(%v) = %v, want %v", tt.ratio, got, tt.expected)
			}
		})
	}
}

// =============================================================================
// RiskRatio 测试
// =============================================================================

func TestRiskRatio(t *testing.T) {
	// 无敞口账户 → 0
	r := RiskRatio(&margin.MarginReport{Satisfied: true})
	if r != 0 {
		t.Errorf("empty account ratio = %v, want 0", r)
	}

	// 预算 1000，敞口 500 → 0.5
	r = RiskRatio(&margin.MarginReport{
		Satisfied:       true,
		HasOpenNotional: true,
		Budget:          1000,
		WeightedSum:     500,
	})
	if r != 0.5 {
		t.Errorf("ratio = %v, want 0.5", r)
	}

	// 有敞口但预算为 0 → Inf
	r = RiskRatio(&margin.MarginReport{
		HasOpenNotional: true,
		Budget:          0,
		WeightedSum:     500,
	})
	if !math.IsInf(r, 1) {
		t.Errorf("zero budget with exposure should be +Inf, got %v", r)
	}

	// 预算恰好等于敞口 → 检查失败，占用率正好 1.0
	r = RiskRatio(&margin.MarginReport{
		Satisfied:       false,
		HasOpenNotional: true,
		Budget:          1000,
		WeightedSum:     1000,
	})
	if r != 1.0 {
		t.Errorf("exact equality ratio = %v, want 1.0", r)
	}

	// 检查失败时占用率永远不小于 1.0，等级结论必须一致
	r = RiskRatio(&margin.MarginReport{
		Satisfied:       false,
		HasOpenNotional: true,
		Budget:          -100,
		WeightedSum:     -50,
	})
	if CalculateRiskLevel(r) != RiskLevelLiquidate {
		t.Errorf("failed check must classify as LIQUIDATE, ratio=%v", r)
	}
}

func TestNewAccountRisk(t *testing.T) {
	key := margin.AccountKey{7}
	data := NewAccountRisk(key)

	if data.Key != key {
		t.Error("key mismatch")
	}
	if data.Symbols == nil {
		t.Error("symbols should be initialized")
	}
	if data.UpdatedAt == 0 {
		t.Error("updatedAt should be set")
	}
}
