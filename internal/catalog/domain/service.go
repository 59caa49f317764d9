package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// GetActive returns the package only when it exists and is sellable.
	GetActive(ctx context.Context, id snowflake.ID) (*PackageDefinition, error)
	// Find returns a package regardless of whether it is still sold.
	Find(ctx context.Context, id snowflake.ID) (*PackageDefinition, error)
	ListActive(ctx context.Context) ([]PackageDefinition, error)
}

var (
	ErrPackageNotFound = errors.New("package_not_found")
	ErrInvalidPackage  = errors.New("invalid_package")
)
