package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRecord struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `gorm:"type:varchar(128);not null;index"`
	Items     string    `gorm:"type:text"` // JSON string
	Total     int64     `gorm:"not null"`
	Status    string    `gorm:"type:varchar(20);default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
}

func (orderRecord) TableName() string {
	return "orders"
}

func toRecord(o models.Order) (orderRecord, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return orderRecord{}, fmt.Errorf("encode items: %w", err)
	}
	return orderRecord{
		ID:        o.ID,
		UserID:    o.UserID,
		Items:     string(items),
		Total:     o.Total,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}, nil
}

func (r orderRecord) toOrder() (models.Order, error) {
	var items []models.LineItem
	if r.Items != "" {
		if err := json.Unmarshal([]byte(r.Items), &items); err != nil {
			return models.Order{}, fmt.Errorf("decode items of %s: %w", r.ID, err)
		}
	}
	return models.Order{
		ID:        r.ID,
		UserID:    r.UserID,
		Items:     items,
		Total:     r.Total,
		CreatedAt: r.CreatedAt,
		Status:    models.Status(r.Status),
	}, nil
}

// SQLMirror mirrors orders into a MySQL table through gorm.
type SQLMirror struct {
	db *gorm.DB
}

func NewSQLMirror(cfg *config.MySQLConfig) (*SQLMirror, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.AutoMigrate(&orderRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &SQLMirror{db: db}, nil
}

// CreateOrder inserts the order and ignores a primary key conflict.
func (s *SQLMirror) CreateOrder(ctx context.Context, order models.Order) error {
	rec, err := toRecord(order)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *SQLMirror) GetOrders(ctx context.Context, userID string) ([]models.Order, error) {
	var records []orderRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := make([]models.Order, 0, len(records))
	for _, r := range records {
		o, err := r.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *SQLMirror) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
