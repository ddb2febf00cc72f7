package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/images"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidDiscount = errors.New("discount must not be negative")

// CatalogService owns the category -> sub-category -> brand -> product
// hierarchy. Deleting any level removes everything beneath it: rows in one
// transaction, then stored images and an event, best-effort.
type CatalogService interface {
	CreateCategory(ctx context.Context, name string, image io.Reader, createdBy uuid.UUID) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, name string, image io.Reader) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	ListCategories(ctx context.Context, page, pageSize int) ([]*domain.Category, int, error)

	CreateSubCategory(ctx context.Context, categoryID uuid.UUID, name string, image io.Reader, createdBy uuid.UUID) (*domain.SubCategory, error)
	UpdateSubCategory(ctx context.Context, id uuid.UUID, name string, image io.Reader) (*domain.SubCategory, error)
	DeleteSubCategory(ctx context.Context, id uuid.UUID) error
	ListSubCategories(ctx context.Context, categoryID uuid.UUID) ([]*domain.SubCategory, error)

	CreateBrand(ctx context.Context, subCategoryID uuid.UUID, name string, logo io.Reader, createdBy uuid.UUID) (*domain.Brand, error)
	UpdateBrand(ctx context.Context, id uuid.UUID, name string, logo io.Reader) (*domain.Brand, error)
	DeleteBrand(ctx context.Context, id uuid.UUID) error
	ListBrands(ctx context.Context, subCategoryID uuid.UUID) ([]*domain.Brand, error)

	CreateProduct(ctx context.Context, input ProductInput, image io.Reader, createdBy uuid.UUID) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input ProductUpdate, image io.Reader) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListProducts(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error)
	SearchProducts(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error)
}

// ProductInput carries the writable product fields
type ProductInput struct {
	Title          string
	Overview       string
	BasePrice      float64
	DiscountAmount float64
	DiscountType   domain.DiscountType
	Stock          int
	BrandID        uuid.UUID
}

// ProductUpdate holds optional product edits; nil fields stay unchanged.
// Zero values are meaningful here: stock can drop to zero to take a product
// off the shelf and a zero Discount removes the markdown.
type ProductUpdate struct {
	Title     *string
	Overview  *string
	BasePrice *float64
	Discount  *domain.Discount
	Stock     *int
	BrandID   *uuid.UUID
}

type catalogService struct {
	categories    repository.CategoryRepository
	subCategories repository.SubCategoryRepository
	brands        repository.BrandRepository
	products      repository.ProductRepository
	imageStore    images.Store
	publisher     events.Publisher
	logger        *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(
	categories repository.CategoryRepository,
	subCategories repository.SubCategoryRepository,
	brands repository.BrandRepository,
	products repository.ProductRepository,
	imageStore images.Store,
	publisher events.Publisher,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		categories:    categories,
		subCategories: subCategories,
		brands:        brands,
		products:      products,
		imageStore:    imageStore,
		publisher:     publisher,
		logger:        logger,
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a display name into a URL-safe slug
func slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// newCustomID is a short stable identifier used for image folder names
func newCustomID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Categories

func (s *catalogService) CreateCategory(ctx context.Context, name string, image io.Reader, createdBy uuid.UUID) (*domain.Category, error) {
	now := time.Now()
	category := &domain.Category{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slugify(name),
		CustomID:  newCustomID(),
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if image != nil {
		url, err := s.imageStore.Upload(ctx, image, "categories/"+category.CustomID, "cover")
		if err != nil {
			return nil, fmt.Errorf("failed to upload category image: %w", err)
		}
		category.ImageURL = url
	}

	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, id uuid.UUID, name string, image io.Reader) (*domain.Category, error) {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		category.Name = name
		category.Slug = slugify(name)
	}
	if image != nil {
		url, err := s.imageStore.Upload(ctx, image, "categories/"+category.CustomID, "cover")
		if err != nil {
			return nil, fmt.Errorf("failed to upload category image: %w", err)
		}
		category.ImageURL = url
	}
	category.UpdatedAt = time.Now()

	if err := s.categories.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory removes the category and its whole subtree. The row cascade
// is transactional; image folders and the event follow after commit.
func (s *catalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	_, productCount, err := s.products.List(ctx, repository.ProductFilter{CategoryID: &id}, 1, 1, "created_at", repository.SortOrderDesc)
	if err != nil {
		return fmt.Errorf("failed to count category products: %w", err)
	}

	category, err := s.categories.DeleteCascade(ctx, id)
	if err != nil {
		return err
	}

	s.cleanupImages(category.CustomID, "categories")
	s.publishPruned("category", category.ID, productCount)
	return nil
}

func (s *catalogService) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.categories.FindByID(ctx, id)
}

func (s *catalogService) ListCategories(ctx context.Context, page, pageSize int) ([]*domain.Category, int, error) {
	return s.categories.List(ctx, page, pageSize)
}

// Sub-categories

func (s *catalogService) CreateSubCategory(ctx context.Context, categoryID uuid.UUID, name string, image io.Reader, createdBy uuid.UUID) (*domain.SubCategory, error) {
	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &domain.SubCategory{
		ID:         uuid.New(),
		CategoryID: categoryID,
		Name:       name,
		Slug:       slugify(name),
		CustomID:   newCustomID(),
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if image != nil {
		url, err := s.imageStore.Upload(ctx, image, "sub-categories/"+sub.CustomID, "cover")
		if err != nil {
			return nil, fmt.Errorf("failed to upload sub-category image: %w", err)
		}
		sub.ImageURL = url
	}

	if err := s.subCategories.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *catalogService) UpdateSubCategory(ctx context.Context, id uuid.UUID, name string, image io.Reader) (*domain.SubCategory, error) {
	sub, err := s.subCategories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		sub.Name = name
		sub.Slug = slugify(name)
	}
	if image != nil {
		url, err := s.imageStore.Upload(ctx, image, "sub-categories/"+sub.CustomID, "cover")
		if err != nil {
			return nil, fmt.Errorf("failed to upload sub-category image: %w", err)
		}
		sub.ImageURL = url
	}
	sub.UpdatedAt = time.Now()

	if err := s.subCategories.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *catalogService) DeleteSubCategory(ctx context.Context, id uuid.UUID) error {
	_, productCount, err := s.products.List(ctx, repository.ProductFilter{SubCategoryID: &id}, 1, 1, "created_at", repository.SortOrderDesc)
	if err != nil {
		return fmt.Errorf("failed to count sub-category products: %w", err)
	}

	sub, err := s.subCategories.DeleteCascade(ctx, id)
	if err != nil {
		return err
	}

	s.cleanupImages(sub.CustomID, "sub-categories")
	s.publishPruned("sub_category", sub.ID, productCount)
	return nil
}

func (s *catalogService) ListSubCategories(ctx context.Context, categoryID uuid.UUID) ([]*domain.SubCategory, error) {
	return s.subCategories.ListByCategory(ctx, categoryID)
}

// Brands

func (s *catalogService) CreateBrand(ctx context.Context, subCategoryID uuid.UUID, name string, logo io.Reader, createdBy uuid.UUID) (*domain.Brand, error) {
	sub, err := s.subCategories.FindByID(ctx, subCategoryID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	brand := &domain.Brand{
		ID:            uuid.New(),
		CategoryID:    sub.CategoryID,
		SubCategoryID: sub.ID,
		Name:          name,
		Slug:          slugify(name),
		CustomID:      newCustomID(),
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if logo != nil {
		url, err := s.imageStore.Upload(ctx, logo, "brands/"+brand.CustomID, "logo")
		if err != nil {
			return nil, fmt.Errorf("failed to upload brand logo: %w", err)
		}
		brand.LogoURL = url
	}

	if err := s.brands.Create(ctx, brand); err != nil {
		return nil, err
	}
	return brand, nil
}

func (s *catalogService) UpdateBrand(ctx context.Context, id uuid.UUID, name string, logo io.Reader) (*domain.Brand, error) {
	brand, err := s.brands.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		brand.Name = name
		brand.Slug = slugify(name)
	}
	if logo != nil {
		url, err := s.imageStore.Upload(ctx, logo, "brands/"+brand.CustomID, "logo")
		if err != nil {
			return nil, fmt.Errorf("failed to upload brand logo: %w", err)
		}
		brand.LogoURL = url
	}
	brand.UpdatedAt = time.Now()

	if err := s.brands.Update(ctx, brand); err != nil {
		return nil, err
	}
	return brand, nil
}

func (s *catalogService) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	_, productCount, err := s.products.List(ctx, repository.ProductFilter{BrandID: &id}, 1, 1, "created_at", repository.SortOrderDesc)
	if err != nil {
		return fmt.Errorf("failed to count brand products: %w", err)
	}

	brand, err := s.brands.DeleteCascade(ctx, id)
	if err != nil {
		return err
	}

	s.cleanupImages(brand.CustomID, "brands")
	s.publishPruned("brand", brand.ID, productCount)
	return nil
}

func (s *catalogService) ListBrands(ctx context.Context, subCategoryID uuid.UUID) ([]*domain.Brand, error) {
	return s.brands.ListBySubCategory(ctx, subCategoryID)
}

// Products

func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput, image io.Reader, createdBy uuid.UUID) (*domain.Product, error) {
	if input.DiscountAmount < 0 {
		return nil, ErrInvalidDiscount
	}

	brand, err := s.brands.FindByID(ctx, input.BrandID)
	if err != nil {
		return nil, err
	}

	discount := domain.Discount{Amount: input.DiscountAmount, Type: input.DiscountType}
	now := time.Now()
	product := &domain.Product{
		ID:            uuid.New(),
		Title:         input.Title,
		Slug:          slugify(input.Title),
		Overview:      input.Overview,
		BasePrice:     input.BasePrice,
		Discount:      discount,
		AppliedPrice:  pricing.AppliedPrice(input.BasePrice, discount),
		Stock:         input.Stock,
		CategoryID:    brand.CategoryID,
		SubCategoryID: brand.SubCategoryID,
		BrandID:       brand.ID,
		CustomID:      newCustomID(),
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if image != nil {
		url, err := s.imageStore.Upload(ctx, image, "products/"+product.CustomID, "cover")
		if err != nil {
			return nil, fmt.Errorf("failed to upload product image: %w", err)
		}
		product.ImageURL = url
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct applies the non-nil edits and recomputes the applied price
// whenever the base price or discount moved.
func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductUpdate, image io.Reader) (*domain.Product, error) {
	if input.Discount != nil && input.Discount.Amount < 0 {
		return nil, ErrInvalidDiscount
	}

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		product.Title = *input.Title
		product.Slug = slugify(*input.Title)
	}
	if input.Overview != nil {
		product.Overview = *input.Overview
	}
	if input.BasePrice != nil {
		product.BasePrice = *input.BasePrice
	}
	if input.Discount != nil {
		product.Discount = *input.Discount
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.BrandID != nil && *input.BrandID != product.BrandID {
		brand, err := s.brands.FindByID(ctx, *input.BrandID)
		if err != nil {
			return nil, err
		}
		product.BrandID = brand.ID
		product.SubCategoryID = brand.SubCategoryID
		product.CategoryID = brand.CategoryID
	}

	product.AppliedPrice = pricing.AppliedPrice(product.BasePrice, product.Discount)

	if image != nil {
		url, err := s.imageStore.Upload(ctx, image, "products/"+product.CustomID, "cover")
		if err != nil {
			return nil, fmt.Errorf("failed to upload product image: %w", err)
		}
		product.ImageURL = url
	}
	product.UpdatedAt = time.Now()

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}

	s.cleanupImages(product.CustomID, "products")

	envelope, err := events.NewEnvelope(events.EventProductDeleted, product.ID.String(),
		events.ProductDeletedPayload{ProductID: product.ID.String()})
	if err == nil {
		s.publisher.Publish(events.TopicCatalog, envelope)
	}
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

func (s *catalogService) ListProducts(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	return s.products.List(ctx, filter, page, pageSize, sortBy, sortOrder)
}

func (s *catalogService) SearchProducts(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	return s.products.Search(ctx, query, page, pageSize)
}

// cleanupImages removes the entity's image folder, best-effort: the database
// rows are already gone and a stale folder is harmless.
func (s *catalogService) cleanupImages(customID, kind string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.imageStore.DeleteFolder(ctx, kind+"/"+customID); err != nil {
			s.logger.Warn("Failed to delete image folder",
				zap.String("folder", kind+"/"+customID), zap.Error(err))
		}
	}()
}

func (s *catalogService) publishPruned(level string, rootID uuid.UUID, productsRemoved int) {
	envelope, err := events.NewEnvelope(events.EventCatalogPruned, rootID.String(), events.CatalogPrunedPayload{
		Level:           level,
		RootID:          rootID.String(),
		ProductsRemoved: productsRemoved,
	})
	if err != nil {
		s.logger.Error("Failed to build event", zap.Error(err))
		return
	}
	s.publisher.Publish(events.TopicCatalog, envelope)
}
