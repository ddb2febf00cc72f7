package transport

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxUploadSize bounds multipart catalog uploads
const maxUploadSize = 10 << 20

// CatalogHandler handles HTTP requests for the catalog hierarchy
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers catalog routes. Reads are public; writes require
// an admin token.
func (h *CatalogHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/catalog", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)
		r.Get("/categories/{id}", h.GetCategory)
		r.Get("/categories/{id}/sub-categories", h.ListSubCategories)
		r.Get("/sub-categories/{id}/brands", h.ListBrands)
		r.Get("/products", h.ListProducts)
		r.Get("/products/search", h.SearchProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware, adminMiddleware)
			r.Post("/categories", h.CreateCategory)
			r.Put("/categories/{id}", h.UpdateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)
			r.Post("/categories/{id}/sub-categories", h.CreateSubCategory)
			r.Put("/sub-categories/{id}", h.UpdateSubCategory)
			r.Delete("/sub-categories/{id}", h.DeleteSubCategory)
			r.Post("/sub-categories/{id}/brands", h.CreateBrand)
			r.Put("/brands/{id}", h.UpdateBrand)
			r.Delete("/brands/{id}", h.DeleteBrand)
			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
		})
	})
}

// formImage returns the optional image part of a multipart form
func formImage(r *http.Request, field string) (io.Reader, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (h *CatalogHandler) respondCatalogError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrSubCategoryNotFound),
		errors.Is(err, repository.ErrBrandNotFound),
		errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrCategorySlugTaken),
		errors.Is(err, repository.ErrSubCategorySlugTaken),
		errors.Is(err, repository.ErrBrandSlugTaken),
		errors.Is(err, repository.ErrProductSlugTaken),
		errors.Is(err, repository.ErrProductStillReferred):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidDiscount):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Catalog operation failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	image, err := formImage(r, "image")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "name is required")
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), name, image, adminID)
	if err != nil {
		h.respondCatalogError(w, err, "create category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, category)
}

func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	image, err := formImage(r, "image")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	category, err := h.catalog.UpdateCategory(r.Context(), id, r.FormValue("name"), image)
	if err != nil {
		h.respondCatalogError(w, err, "update category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, category)
}

// DeleteCategory removes the category and everything beneath it
func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), id); err != nil {
		h.respondCatalogError(w, err, "delete category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "category deleted"})
}

func (h *CatalogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	category, err := h.catalog.GetCategory(r.Context(), id)
	if err != nil {
		h.respondCatalogError(w, err, "get category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, category)
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	categories, total, err := h.catalog.ListCategories(r.Context(), page, pageSize)
	if err != nil {
		h.respondCatalogError(w, err, "list categories")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listResponse{Items: categories, Total: total, Page: page, PageSize: pageSize})
}

func (h *CatalogHandler) CreateSubCategory(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	categoryID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	image, err := formImage(r, "image")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "name is required")
		return
	}

	subCategory, err := h.catalog.CreateSubCategory(r.Context(), categoryID, name, image, adminID)
	if err != nil {
		h.respondCatalogError(w, err, "create sub-category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, subCategory)
}

func (h *CatalogHandler) UpdateSubCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sub-category id")
		return
	}
	image, err := formImage(r, "image")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	subCategory, err := h.catalog.UpdateSubCategory(r.Context(), id, r.FormValue("name"), image)
	if err != nil {
		h.respondCatalogError(w, err, "update sub-category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, subCategory)
}

func (h *CatalogHandler) DeleteSubCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sub-category id")
		return
	}
	if err := h.catalog.DeleteSubCategory(r.Context(), id); err != nil {
		h.respondCatalogError(w, err, "delete sub-category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "sub-category deleted"})
}

func (h *CatalogHandler) ListSubCategories(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	subCategories, err := h.catalog.ListSubCategories(r.Context(), categoryID)
	if err != nil {
		h.respondCatalogError(w, err, "list sub-categories")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, subCategories)
}

func (h *CatalogHandler) CreateBrand(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	subCategoryID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sub-category id")
		return
	}
	logo, err := formImage(r, "logo")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "name is required")
		return
	}

	brand, err := h.catalog.CreateBrand(r.Context(), subCategoryID, name, logo, adminID)
	if err != nil {
		h.respondCatalogError(w, err, "create brand")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, brand)
}

func (h *CatalogHandler) UpdateBrand(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid brand id")
		return
	}
	logo, err := formImage(r, "logo")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	brand, err := h.catalog.UpdateBrand(r.Context(), id, r.FormValue("name"), logo)
	if err != nil {
		h.respondCatalogError(w, err, "update brand")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, brand)
}

func (h *CatalogHandler) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid brand id")
		return
	}
	if err := h.catalog.DeleteBrand(r.Context(), id); err != nil {
		h.respondCatalogError(w, err, "delete brand")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "brand deleted"})
}

func (h *CatalogHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	subCategoryID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sub-category id")
		return
	}
	brands, err := h.catalog.ListBrands(r.Context(), subCategoryID)
	if err != nil {
		h.respondCatalogError(w, err, "list brands")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, brands)
}

// productInputFromForm reads the product fields of a multipart form
func productInputFromForm(r *http.Request) (service.ProductInput, error) {
	var input service.ProductInput
	input.Title = r.FormValue("title")
	input.Overview = r.FormValue("overview")

	var err error
	if v := r.FormValue("base_price"); v != "" {
		if input.BasePrice, err = strconv.ParseFloat(v, 64); err != nil {
			return input, err
		}
	}
	if v := r.FormValue("discount_amount"); v != "" {
		if input.DiscountAmount, err = strconv.ParseFloat(v, 64); err != nil {
			return input, err
		}
	}
	input.DiscountType = domain.DiscountType(r.FormValue("discount_type"))
	if v := r.FormValue("stock"); v != "" {
		if input.Stock, err = strconv.Atoi(v); err != nil {
			return input, err
		}
	}
	if v := r.FormValue("brand_id"); v != "" {
		if input.BrandID, err = uuid.Parse(v); err != nil {
			return input, err
		}
	}
	return input, nil
}

// formField reports whether a form field was sent at all, so an absent field
// and an explicit zero can be told apart.
func formField(r *http.Request, name string) (string, bool) {
	values, ok := r.Form[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// productUpdateFromForm builds a partial update: only fields present in the
// form are set. Sending stock=0 empties the shelf and an empty discount_type
// removes the discount, while omitted fields stay as they are.
func productUpdateFromForm(r *http.Request) (service.ProductUpdate, error) {
	var input service.ProductUpdate
	if v, ok := formField(r, "title"); ok {
		input.Title = &v
	}
	if v, ok := formField(r, "overview"); ok {
		input.Overview = &v
	}
	if v, ok := formField(r, "base_price"); ok {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return input, err
		}
		input.BasePrice = &price
	}
	if v, ok := formField(r, "discount_type"); ok {
		discount := domain.Discount{Type: domain.DiscountType(v)}
		if a, ok := formField(r, "discount_amount"); ok {
			amount, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return input, err
			}
			discount.Amount = amount
		}
		input.Discount = &discount
	}
	if v, ok := formField(r, "stock"); ok {
		stock, err := strconv.Atoi(v)
		if err != nil {
			return input, err
		}
		input.Stock = &stock
	}
	if v, ok := formField(r, "brand_id"); ok {
		brandID, err := uuid.Parse(v)
		if err != nil {
			return input, err
		}
		input.BrandID = &brandID
	}
	return input, nil
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	image, err := formImage(r, "image")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	input, err := productInputFromForm(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product fields")
		return
	}
	if input.Title == "" || input.BasePrice <= 0 || input.BrandID == uuid.Nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "title, base_price and brand_id are required")
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), input, image, adminID)
	if err != nil {
		h.respondCatalogError(w, err, "create product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	image, err := formImage(r, "image")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	input, err := productUpdateFromForm(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product fields")
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, input, image)
	if err != nil {
		h.respondCatalogError(w, err, "update product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		h.respondCatalogError(w, err, "delete product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.respondCatalogError(w, err, "get product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// ListProducts filters by any level of the hierarchy via query parameters
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	var filter repository.ProductFilter
	q := r.URL.Query()
	if v := q.Get("category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}
	if v := q.Get("sub_category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid sub_category_id")
			return
		}
		filter.SubCategoryID = &id
	}
	if v := q.Get("brand_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid brand_id")
			return
		}
		filter.BrandID = &id
	}

	sortBy := q.Get("sort_by")
	sortOrder := repository.SortOrder(q.Get("sort_order"))

	products, total, err := h.catalog.ListProducts(r.Context(), filter, page, pageSize, sortBy, sortOrder)
	if err != nil {
		h.respondCatalogError(w, err, "list products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listResponse{Items: products, Total: total, Page: page, PageSize: pageSize})
}

func (h *CatalogHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	query := r.URL.Query().Get("q")

	products, total, err := h.catalog.SearchProducts(r.Context(), query, page, pageSize)
	if err != nil {
		h.respondCatalogError(w, err, "search products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listResponse{Items: products, Total: total, Page: page, PageSize: pageSize})
}
