package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlr/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PackageDefinition, error) {
	var item domain.PackageDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, price, currency, duration_days, features, active, created_at, updated_at
		 FROM packages WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.PackageDefinition, error) {
	var items []domain.PackageDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, price, currency, duration_days, features, active, created_at, updated_at
		 FROM packages WHERE active = ? ORDER BY price ASC, id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
