package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocery-service/internal/models"
	"grocery-service/internal/port"
	"grocery-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogService serves read-only catalog queries
type CatalogService struct {
	catalog port.CatalogStore
	timeout time.Duration
	logger  *zap.Logger
}

func NewCatalogService(catalog port.CatalogStore, timeout time.Duration) *CatalogService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CatalogService{catalog: catalog, timeout: timeout, logger: util.GetLogger()}
}

// ListProducts filters by exact category and a case-insensitive name substring.
// The "all" category and empty values do not filter.
func (s *CatalogService) ListProducts(ctx context.Context, category, search string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := models.ProductFilter{Category: category, Search: search}.Normalize()
	products, err := s.catalog.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.catalog.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: Product not found", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]string, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCategories")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}

// RestockProduct adds quantity units to a product's stock
func (s *CatalogService) RestockProduct(ctx context.Context, id uuid.UUID, quantity int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.RestockProduct")
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be positive", models.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.catalog.RestockProduct(ctx, id, quantity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: Product not found", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to restock product: %w", err)
	}

	s.logger.Info("Product restocked",
		zap.String("product_id", id.String()),
		zap.Int("added", quantity),
		zap.Int("stock", product.StockQuantity))
	return product, nil
}
