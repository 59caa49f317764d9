package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlr/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetActive(ctx context.Context, id snowflake.ID) (*domain.PackageDefinition, error) {
	if id == 0 {
		return nil, domain.ErrPackageNotFound
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.Active {
		return nil, domain.ErrPackageNotFound
	}
	if item.DurationDays <= 0 || item.Price < 0 {
		s.log.Warn("package has invalid terms",
			zap.String("package_id", id.String()),
			zap.Int("duration_days", item.DurationDays),
			zap.Int64("price", item.Price),
		)
		return nil, domain.ErrInvalidPackage
	}
	return item, nil
}

func (s *Service) Find(ctx context.Context, id snowflake.ID) (*domain.PackageDefinition, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrPackageNotFound
	}
	return item, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.PackageDefinition, error) {
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return items, nil
}
