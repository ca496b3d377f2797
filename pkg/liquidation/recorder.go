// 文件: pkg/liquidation/recorder.go
// 清算记录 MySQL 存储实现
//
// 【设计】
// - 使用 GORM 作为 ORM
// - LiquidationRecord 需要实现 GORM 的 TableName() 方法
// - 所有操作带 context 支持超时控制

package liquidation

import (
	"context"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// =============================================================================
// 存储模型
// =============================================================================

// LiquidationRecord 清算记录（落库模型）
type LiquidationRecord struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	TaskID        int64  `gorm:"uniqueIndex;not null"`
	Account       string `gorm:"index;size:64;not null"` // 账户引用的十六进制表示
	Ratio         float64
	AssetIndex    int
	QuoteIndex    int
	AssetQty      int64
	QuoteValue    int64
	HasOpenOrders bool
	Success       bool
	Error         string `gorm:"size:512"`
	Attempts      int
	ExecutedAt    int64 // Unix 毫秒
	CreatedAt     int64 // Unix 毫秒
}

// TableName GORM 表名
func (LiquidationRecord) TableName() string {
	return "liquidation_records"
}

// NewLiquidationRecord 从任务和执行结果构建记录
func NewLiquidationRecord(task LiquidationTask, result LiquidationResult) *LiquidationRecord {
	rec := &LiquidationRecord{
		TaskID:        task.TaskID,
		Account:       task.Key.String(),
		Ratio:         task.Ratio,
		AssetIndex:    task.AssetIndex,
		QuoteIndex:    task.QuoteIndex,
		AssetQty:      task.Size.AssetQty,
		QuoteValue:    task.Size.QuoteValue,
		HasOpenOrders: task.HasOpenOrders,
		Success:       result.Success,
		Attempts:      result.Attempts,
		ExecutedAt:    result.ExecutedAt.UnixMilli(),
	}
	if result.Error != nil {
		rec.Error = result.Error.Error()
	}
	return rec
}

// =============================================================================
// Recorder 接口与 MySQL 实现
// =============================================================================

// Recorder 清算记录持久化接口
type Recorder interface {
	// Save 保存一条清算记录
	Save(ctx context.Context, rec *LiquidationRecord) error

	// ListByAccount 查询指定账户的历史清算记录（按时间倒序）
	ListByAccount(ctx context.Context, account string, limit int) ([]*LiquidationRecord, error)
}

// 确保实现了接口
var _ Recorder = (*MySQLRecorder)(nil)

// MySQLRecorder MySQL 实现
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder 创建 MySQL 存储
func NewMySQLRecorder(db *gorm.DB) *MySQLRecorder {
	return &MySQLRecorder{db: db}
}

// OpenMySQLRecorder 按 DSN 打开连接并自动迁移表结构
func OpenMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&LiquidationRecord{}); err != nil {
		return nil, err
	}
	return NewMySQLRecorder(db), nil
}

// Save 保存清算记录
func (r *MySQLRecorder) Save(ctx context.Context, rec *LiquidationRecord) error {
	rec.CreatedAt = time.Now().UnixMilli()
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListByAccount 查询账户的历史清算记录
func (r *MySQLRecorder) ListByAccount(ctx context.Context, account string, limit int) ([]*LiquidationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var recs []*LiquidationRecord
	err := r.db.WithContext(ctx).
		Where("account = ?", account).
		Order("executed_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
