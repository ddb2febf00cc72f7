package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/images"
	"storefront/internal/mailer"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
}

// Deps carries the externally-managed dependencies into the server. The
// caller owns their lifecycles; the server only wires them together.
type Deps struct {
	DB          *sql.DB
	Redis       *redis.Client
	Publisher   events.Publisher
	Broadcaster notify.Broadcaster
	ImageStore  images.Store
	Mailer      mailer.Mailer
	Gateway     payment.Gateway
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env == "development"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	if deps.Redis != nil {
		router.Use(custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: 300,
			Window:            time.Minute,
			KeyPrefix:         "ratelimit",
			ExemptPaths:       []string{"/api/payments/webhook"},
		}, logger))
	}

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Initialize repositories
	txRunner := repository.NewTxRunner(deps.DB)
	userRepo := repository.NewUserRepository(deps.DB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(deps.DB)
	categoryRepo := repository.NewCategoryRepository(deps.DB)
	subCategoryRepo := repository.NewSubCategoryRepository(deps.DB)
	brandRepo := repository.NewBrandRepository(deps.DB)
	productRepo := repository.NewProductRepository(deps.DB)
	cartRepo := repository.NewCartRepository(deps.DB)
	couponRepo := repository.NewCouponRepository(deps.DB)
	orderRepo := repository.NewOrderRepository(deps.DB)
	addressRepo := repository.NewAddressRepository(deps.DB)
	reviewRepo := repository.NewReviewRepository(deps.DB)

	// Initialize services
	verifyURL := cfg.Server.BaseURL + "/api/users/verify-email"
	userService := service.NewUserService(userRepo, refreshTokenRepo, deps.Mailer, cfg.JWT.Secret, verifyURL, logger)
	catalogService := service.NewCatalogService(categoryRepo, subCategoryRepo, brandRepo, productRepo, deps.ImageStore, deps.Publisher, logger)
	cartService := service.NewCartService(cartRepo, productRepo, logger)
	couponService := service.NewCouponService(couponRepo, userRepo, deps.Broadcaster, deps.Mailer, deps.Publisher, logger)
	addressService := service.NewAddressService(addressRepo)
	orderService := service.NewOrderService(
		txRunner, orderRepo, cartRepo, productRepo, couponRepo, addressRepo, userRepo,
		couponService, deps.Gateway, deps.Mailer, deps.Publisher, deps.Broadcaster, logger,
	)
	reviewService := service.NewReviewService(reviewRepo, orderRepo, productRepo, logger)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	catalogHandler := transport.NewCatalogHandler(catalogService, logger)
	cartHandler := transport.NewCartHandler(cartService, logger)
	couponHandler := transport.NewCouponHandler(couponService, logger)
	addressHandler := transport.NewAddressHandler(addressService, logger)
	orderHandler := transport.NewOrderHandler(orderService, logger)
	reviewHandler := transport.NewReviewHandler(reviewService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)
	courierMiddleware := custommiddleware.RequireRole([]string{custommiddleware.RoleAdmin, custommiddleware.RoleCourier}, logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware)
	catalogHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	cartHandler.RegisterRoutes(router, authMiddleware)
	couponHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	addressHandler.RegisterRoutes(router, authMiddleware)
	orderHandler.RegisterRoutes(router, authMiddleware, adminMiddleware, courierMiddleware)
	reviewHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     deps.DB,
		redis:  deps.Redis,
	}

	return server
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
