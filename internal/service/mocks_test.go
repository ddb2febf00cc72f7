package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// In-memory repositories for testing. They enforce the same conditional
// update semantics as the SQL implementations so transition and counter
// guards are exercised.

type stubTxRunner struct{}

func (stubTxRunner) RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) byID(id uuid.UUID) (*domain.User, error) {
	return m.FindByID(context.Background(), id)
}

func (m *mockUserRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	user, err := m.byID(id)
	if err != nil {
		return err
	}
	user.IsEmailVerified = true
	return nil
}

func (m *mockUserRepository) SetOTP(ctx context.Context, id uuid.UUID, otpHash string, expiresAt time.Time) error {
	user, err := m.byID(id)
	if err != nil {
		return err
	}
	user.OTPHash = otpHash
	user.OTPExpiresAt = &expiresAt
	return nil
}

func (m *mockUserRepository) ClearOTP(ctx context.Context, id uuid.UUID) error {
	user, err := m.byID(id)
	if err != nil {
		return err
	}
	user.OTPHash = ""
	user.OTPExpiresAt = nil
	return nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	user, err := m.byID(id)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	existing, err := m.byID(user.ID)
	if err != nil {
		return err
	}
	if existing.Email != user.Email {
		if _, taken := m.users[user.Email]; taken {
			return repository.ErrUserAlreadyExists
		}
		delete(m.users, existing.Email)
		m.users[user.Email] = user
		return nil
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) SetDeactivated(ctx context.Context, id uuid.UUID, deactivated bool) error {
	user, err := m.byID(id)
	if err != nil {
		return err
	}
	user.IsDeactivated = deactivated
	return nil
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

type mockProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockProductRepository) WithTx(tx *sql.Tx) repository.ProductRepository { return m }

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.products[product.ID]; !exists {
		return repository.ErrProductNotFound
	}
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.products[id]; !exists {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return nil, repository.ErrProductNotFound
	}
	copied := *product
	return &copied, nil
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Product
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockProductRepository) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	return m.List(ctx, repository.ProductFilter{}, page, pageSize, "", repository.SortOrderDesc)
}

func (m *mockProductRepository) Reserve(ctx context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return repository.ErrProductNotFound
	}
	if product.Stock < quantity {
		return repository.ErrInsufficientStock
	}
	product.Stock -= quantity
	product.Reserved += quantity
	return nil
}

func (m *mockProductRepository) CommitReservation(ctx context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return repository.ErrProductNotFound
	}
	if product.Reserved < quantity {
		return repository.ErrNothingReserved
	}
	product.Reserved -= quantity
	return nil
}

func (m *mockProductRepository) Release(ctx context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return repository.ErrProductNotFound
	}
	if product.Reserved < quantity {
		return repository.ErrNothingReserved
	}
	product.Stock += quantity
	product.Reserved -= quantity
	return nil
}

func (m *mockProductRepository) Restock(ctx context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return repository.ErrProductNotFound
	}
	product.Stock += quantity
	return nil
}

func (m *mockProductRepository) UpdateRating(ctx context.Context, id uuid.UUID, rating float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return repository.ErrProductNotFound
	}
	product.Rating = rating
	return nil
}

type mockCartRepository struct {
	carts map[uuid.UUID]*domain.Cart // keyed by user id
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{carts: make(map[uuid.UUID]*domain.Cart)}
}

func (m *mockCartRepository) WithTx(tx *sql.Tx) repository.CartRepository { return m }

func (m *mockCartRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, exists := m.carts[userID]
	if !exists {
		return nil, repository.ErrCartNotFound
	}
	return cart, nil
}

func (m *mockCartRepository) AddItem(ctx context.Context, userID uuid.UUID, item domain.CartItem) (*domain.Cart, error) {
	cart, exists := m.carts[userID]
	if !exists {
		cart = &domain.Cart{ID: uuid.New(), UserID: userID, CreatedAt: time.Now()}
		m.carts[userID] = cart
	}
	for _, existing := range cart.Items {
		if existing.ProductID == item.ProductID {
			return nil, repository.ErrCartItemAlreadyExists
		}
	}
	item.CartID = cart.ID
	cart.Items = append(cart.Items, item)
	return cart, nil
}

func (m *mockCartRepository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error) {
	cart, exists := m.carts[userID]
	if !exists {
		return nil, repository.ErrCartNotFound
	}
	for i, item := range cart.Items {
		if item.ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			if len(cart.Items) == 0 {
				delete(m.carts, userID)
				return nil, nil
			}
			return cart, nil
		}
	}
	return nil, repository.ErrCartItemNotFound
}

func (m *mockCartRepository) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	cart, exists := m.carts[userID]
	if !exists {
		return nil, repository.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			return cart, nil
		}
	}
	return nil, repository.ErrCartItemNotFound
}

func (m *mockCartRepository) Clear(ctx context.Context, cartID uuid.UUID) error {
	for userID, cart := range m.carts {
		if cart.ID == cartID {
			delete(m.carts, userID)
			return nil
		}
	}
	return repository.ErrCartNotFound
}

type mockCouponRepository struct {
	coupons map[uuid.UUID]*domain.Coupon
	logs    []*domain.CouponLog
}

func newMockCouponRepository() *mockCouponRepository {
	return &mockCouponRepository{coupons: make(map[uuid.UUID]*domain.Coupon)}
}

func (m *mockCouponRepository) WithTx(tx *sql.Tx) repository.CouponRepository { return m }

func (m *mockCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	for _, existing := range m.coupons {
		if existing.Code == coupon.Code {
			return repository.ErrCouponCodeTaken
		}
	}
	m.coupons[coupon.ID] = coupon
	return nil
}

func (m *mockCouponRepository) Update(ctx context.Context, coupon *domain.Coupon, log *domain.CouponLog) error {
	if _, exists := m.coupons[coupon.ID]; !exists {
		return repository.ErrCouponNotFound
	}
	m.coupons[coupon.ID] = coupon
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockCouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, exists := m.coupons[id]; !exists {
		return repository.ErrCouponNotFound
	}
	delete(m.coupons, id)
	return nil
}

func (m *mockCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	coupon, exists := m.coupons[id]
	if !exists {
		return nil, repository.ErrCouponNotFound
	}
	return coupon, nil
}

func (m *mockCouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	for _, coupon := range m.coupons {
		if coupon.Code == code {
			return coupon, nil
		}
	}
	return nil, repository.ErrCouponNotFound
}

func (m *mockCouponRepository) List(ctx context.Context, enabledOnly bool, page, pageSize int) ([]*domain.Coupon, int, error) {
	var out []*domain.Coupon
	for _, coupon := range m.coupons {
		if enabledOnly && !coupon.IsEnable {
			continue
		}
		out = append(out, coupon)
	}
	return out, len(out), nil
}

func (m *mockCouponRepository) IncrementUsage(ctx context.Context, couponID, userID uuid.UUID) error {
	coupon, exists := m.coupons[couponID]
	if !exists {
		return repository.ErrCouponNotFound
	}
	for i := range coupon.Users {
		if coupon.Users[i].UserID == userID {
			if coupon.Users[i].UsageCount >= coupon.Users[i].MaxCount {
				return repository.ErrCouponExhausted
			}
			coupon.Users[i].UsageCount++
			return nil
		}
	}
	return repository.ErrCouponExhausted
}

func (m *mockCouponRepository) DecrementUsage(ctx context.Context, couponID, userID uuid.UUID) error {
	coupon, exists := m.coupons[couponID]
	if !exists {
		return repository.ErrCouponNotFound
	}
	for i := range coupon.Users {
		if coupon.Users[i].UserID == userID {
			if coupon.Users[i].UsageCount <= 0 {
				return repository.ErrCouponNotRedeemed
			}
			coupon.Users[i].UsageCount--
			return nil
		}
	}
	return repository.ErrCouponNotRedeemed
}

func (m *mockCouponRepository) DisableExpired(ctx context.Context) (int64, error) {
	var disabled int64
	now := time.Now()
	for _, coupon := range m.coupons {
		if coupon.IsEnable && !now.Before(coupon.Till) {
			coupon.IsEnable = false
			disabled++
		}
	}
	return disabled, nil
}

func (m *mockCouponRepository) ListLogs(ctx context.Context, couponID uuid.UUID) ([]*domain.CouponLog, error) {
	var out []*domain.CouponLog
	for _, log := range m.logs {
		if log.CouponID == couponID {
			out = append(out, log)
		}
	}
	return out, nil
}

type mockOrderRepository struct {
	orders map[uuid.UUID]*domain.Order
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *mockOrderRepository) WithTx(tx *sql.Tx) repository.OrderRepository { return m }

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, exists := m.orders[id]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *mockOrderRepository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Order, error) {
	order, err := m.FindByID(ctx, id)
	if err != nil || order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (m *mockOrderRepository) FindByPaymentIntent(ctx context.Context, paymentIntent string) (*domain.Order, error) {
	for _, order := range m.orders {
		if order.PaymentIntent == paymentIntent {
			copied := *order
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	var out []*domain.Order
	for _, order := range m.orders {
		if filter.UserID != nil && order.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		out = append(out, order)
	}
	return out, len(out), nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	if !domain.CanTransition(from, to) {
		return repository.ErrOrderInvalidTransition
	}
	order, exists := m.orders[id]
	if !exists || order.Status != from {
		return repository.ErrOrderInvalidTransition
	}
	order.Status = to
	return nil
}

func (m *mockOrderRepository) MarkCanceled(ctx context.Context, id uuid.UUID, from domain.OrderStatus, canceledBy uuid.UUID, canceledAt time.Time) error {
	if err := m.UpdateStatus(ctx, id, from, domain.OrderCanceled); err != nil {
		return err
	}
	order := m.orders[id]
	order.CanceledBy = &canceledBy
	order.CanceledAt = &canceledAt
	return nil
}

func (m *mockOrderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, from domain.OrderStatus, deliveredBy uuid.UUID, deliveredAt time.Time) error {
	if err := m.UpdateStatus(ctx, id, from, domain.OrderDelivered); err != nil {
		return err
	}
	order := m.orders[id]
	order.DeliveredBy = &deliveredBy
	order.DeliveredAt = &deliveredAt
	return nil
}

func (m *mockOrderRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, paymentIntent string) error {
	order, exists := m.orders[id]
	if !exists {
		return repository.ErrOrderNotFound
	}
	order.PaymentIntent = paymentIntent
	return nil
}

type mockAddressRepository struct {
	addresses map[uuid.UUID]*domain.Address
}

func newMockAddressRepository() *mockAddressRepository {
	return &mockAddressRepository{addresses: make(map[uuid.UUID]*domain.Address)}
}

func (m *mockAddressRepository) Create(ctx context.Context, address *domain.Address) error {
	m.addresses[address.ID] = address
	return nil
}

func (m *mockAddressRepository) Update(ctx context.Context, address *domain.Address) error {
	if _, exists := m.addresses[address.ID]; !exists {
		return repository.ErrAddressNotFound
	}
	m.addresses[address.ID] = address
	return nil
}

func (m *mockAddressRepository) MarkAsOld(ctx context.Context, userID, id uuid.UUID) error {
	address, exists := m.addresses[id]
	if !exists || address.UserID != userID {
		return repository.ErrAddressNotFound
	}
	address.IsMarkedAsOld = true
	address.IsDefault = false
	return nil
}

func (m *mockAddressRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Address, error) {
	address, exists := m.addresses[id]
	if !exists || address.UserID != userID || address.IsMarkedAsOld {
		return nil, repository.ErrAddressNotFound
	}
	return address, nil
}

func (m *mockAddressRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Address, error) {
	var out []*domain.Address
	for _, address := range m.addresses {
		if address.UserID == userID && !address.IsMarkedAsOld {
			out = append(out, address)
		}
	}
	return out, nil
}

type mockMailer struct {
	mu            sync.Mutex
	verifyLinks   []string
	otps          []string
	confirmations []string
	couponNotices []string
}

func (m *mockMailer) SendVerificationEmail(to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyLinks = append(m.verifyLinks, link)
	return nil
}

func (m *mockMailer) SendPasswordResetOTP(to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps = append(m.otps, code)
	return nil
}

func (m *mockMailer) SendOrderConfirmation(to, orderID string, total float64, qrPNG []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, orderID)
	return nil
}

func (m *mockMailer) SendCouponNotification(to, code string, amount float64, till string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.couponNotices = append(m.couponNotices, to)
	return nil
}

// waitFor polls until extract returns a non-empty value or the deadline
// passes; the mails behind it are sent from goroutines.
func (m *mockMailer) waitFor(extract func() string) string {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		value := extract()
		m.mu.Unlock()
		if value != "" {
			return value
		}
		time.Sleep(10 * time.Millisecond)
	}
	return ""
}

func (m *mockMailer) lastOTP() string {
	return m.waitFor(func() string {
		if len(m.otps) == 0 {
			return ""
		}
		return m.otps[len(m.otps)-1]
	})
}

func (m *mockMailer) lastVerifyLink() string {
	return m.waitFor(func() string {
		if len(m.verifyLinks) == 0 {
			return ""
		}
		return m.verifyLinks[len(m.verifyLinks)-1]
	})
}

type mockGateway struct {
	sessions     int
	refunds      []string
	refundErr    error
	webhookEvent *payment.WebhookEvent
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, order *domain.Order, customerEmail string) (*payment.CheckoutSession, error) {
	m.sessions++
	return &payment.CheckoutSession{
		ID:  "cs_test_" + order.ID.String(),
		URL: "https://checkout.example.com/" + order.ID.String(),
	}, nil
}

func (m *mockGateway) Refund(ctx context.Context, paymentIntent string) error {
	if m.refundErr != nil {
		return m.refundErr
	}
	m.refunds = append(m.refunds, paymentIntent)
	return nil
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if m.webhookEvent == nil {
		return nil, payment.ErrUnknownEvent
	}
	return m.webhookEvent, nil
}
