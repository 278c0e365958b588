package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/iris_server/internal/model"
)

var (
	// ErrVersionConflict 条件更新未命中：账本在读取之后已被其他请求修改
	ErrVersionConflict = errors.New("credit ledger version conflict")
	ErrLedgerNotFound  = errors.New("credit ledger not found")
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) GetByUserID(ctx context.Context, userID int64) (*model.CreditLedger, error) {
	var ledger model.CreditLedger
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

// CreateIfAbsent 插入默认账本；并发创建时以先写入者为准，返回库中实际的那一条
func (r *CreditRepository) CreateIfAbsent(ctx context.Context, ledger *model.CreditLedger) (*model.CreditLedger, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(ledger).Error
	if err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, ledger.UserID)
}

// CompareAndSwap 仅当库中 version 仍为 expected 时写入 ledger 的状态字段，
// 成功后 ledger.Version 前进一位
func (r *CreditRepository) CompareAndSwap(ctx context.Context, ledger *model.CreditLedger, expected int64) error {
	result := r.db.WithContext(ctx).Model(&model.CreditLedger{}).
		Where("user_id = ? AND version = ?", ledger.UserID, expected).
		Updates(map[string]interface{}{
			"plan":            ledger.Plan,
			"balance":         ledger.Balance,
			"last_reset":      ledger.LastReset,
			"expiration_date": ledger.ExpirationDate,
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	ledger.Version = expected + 1
	return nil
}

// AddBalance 原子加回余额，不做上限截断
func (r *CreditRepository) AddBalance(ctx context.Context, userID int64, amount int) error {
	result := r.db.WithContext(ctx).Model(&model.CreditLedger{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

// ListAfter 按主键游标分批扫描
func (r *CreditRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]model.CreditLedger, error) {
	var ledgers []model.CreditLedger
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&ledgers).Error
	return ledgers, err
}

func (r *CreditRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CreditLedger{}).Count(&count).Error
	return count, err
}
