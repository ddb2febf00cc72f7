package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	connStr := "postgres://" + dbUser + ":" + dbPwd + "@" + dbHost + ":" + dbPort.Port() + "/" + dbName + "?sslmode=disable"
	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return dbContainer.Terminate, err
	}
	if err := goose.Up(testDB, "../../migrations"); err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
}

// createTestUser inserts a user row satisfying the FKs of carts, orders and
// coupon allowances.
func createTestUser(t *testing.T) *domain.User {
	t.Helper()

	user := &domain.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("user-%s@example.com", uuid.New().String()[:8]),
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		FirstName:    "Test",
		LastName:     "User",
		Role:         "user",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := NewUserRepository(testDB).Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// catalogFixture is a full category -> sub-category -> brand -> product chain
type catalogFixture struct {
	Category    *domain.Category
	SubCategory *domain.SubCategory
	Brand       *domain.Brand
	Product     *domain.Product
}

// seedCatalog builds one complete catalog chain with the given product stock
func seedCatalog(t *testing.T, stock int) *catalogFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	suffix := uuid.New().String()[:8]
	createdBy := uuid.New()

	category := &domain.Category{
		ID:        uuid.New(),
		Name:      "Category " + suffix,
		Slug:      "category-" + suffix,
		CustomID:  suffix,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := NewCategoryRepository(testDB).Create(ctx, category); err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}

	subCategory := &domain.SubCategory{
		ID:         uuid.New(),
		CategoryID: category.ID,
		Name:       "SubCategory " + suffix,
		Slug:       "sub-category-" + suffix,
		CustomID:   suffix,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := NewSubCategoryRepository(testDB).Create(ctx, subCategory); err != nil {
		t.Fatalf("failed to seed sub-category: %v", err)
	}

	brand := &domain.Brand{
		ID:            uuid.New(),
		CategoryID:    category.ID,
		SubCategoryID: subCategory.ID,
		Name:          "Brand " + suffix,
		Slug:          "brand-" + suffix,
		CustomID:      suffix,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := NewBrandRepository(testDB).Create(ctx, brand); err != nil {
		t.Fatalf("failed to seed brand: %v", err)
	}

	product := &domain.Product{
		ID:            uuid.New(),
		Title:         "Product " + suffix,
		Slug:          "product-" + suffix,
		Overview:      "Seeded product",
		BasePrice:     100,
		AppliedPrice:  100,
		Stock:         stock,
		CategoryID:    category.ID,
		SubCategoryID: subCategory.ID,
		BrandID:       brand.ID,
		CustomID:      suffix,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := NewProductRepository(testDB).Create(ctx, product); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}

	return &catalogFixture{
		Category:    category,
		SubCategory: subCategory,
		Brand:       brand,
		Product:     product,
	}
}

func countRows(t *testing.T, table, column string, id uuid.UUID) int {
	t.Helper()
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", table, column)
	if err := testDB.QueryRow(query, id).Scan(&n); err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	return n
}
