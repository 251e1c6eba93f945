package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

// Store keeps every entity in process memory behind one RWMutex.
type Store struct {
	mu              sync.RWMutex
	productsByID    map[string]domain.Product
	productIDBySKU  map[string]string
	changeLogs      []domain.ProductChangeLog
	ordersByID      map[string]domain.Order
	salesByID       map[string]domain.Sale
	invoicesByID    map[string]domain.Invoice
	billingByID     map[string]domain.BillingRecord
	estimatesByID   map[string]domain.Estimate
	estimateSeq     int
	usersByUsername map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		productsByID:    make(map[string]domain.Product),
		productIDBySKU:  make(map[string]string),
		changeLogs:      make([]domain.ProductChangeLog, 0, 64),
		ordersByID:      make(map[string]domain.Order),
		salesByID:       make(map[string]domain.Sale),
		invoicesByID:    make(map[string]domain.Invoice),
		billingByID:     make(map[string]domain.BillingRecord),
		estimatesByID:   make(map[string]domain.Estimate),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a small catalogue and the admin and cashier
// accounts. Passwords come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	catalogue := []struct {
		sku, name, category, price string
		stock, need                int
		vendors                    []string
	}{
		{"SKU-KOPI-01", "Kopi Sachet", "beverage", "2600", 120, 40, []string{"PT Kopi Nusantara"}},
		{"SKU-TEH-01", "Teh Celup", "beverage", "9800", 80, 20, []string{"Teh Tjap Dua"}},
		{"SKU-GULA-01", "Gula 1kg", "grocery", "17400", 15, 25, []string{"Sumber Manis"}},
		{"SKU-MIE-01", "Mie Goreng Instan", "grocery", "3500", 200, 60, []string{"Indo Pangan", "Grosir Jaya"}},
		{"SKU-SUSU-01", "Susu UHT 1L", "dairy", "18900", 8, 12, []string{"Dairy Fresh"}},
		{"SKU-SABUN-01", "Sabun Mandi", "household", "7400", 45, 0, nil},
	}
	for _, item := range catalogue {
		p := domain.Product{
			ID:          xid.New("prd"),
			SKU:         item.sku,
			Name:        item.name,
			Category:    item.category,
			Price:       decimal.RequireFromString(item.price),
			Stock:       item.stock,
			NeedToOrder: item.need,
			Vendors:     slices.Clone(item.vendors),
			Images:      []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if p.Vendors == nil {
			p.Vendors = []string{}
		}
		s.productsByID[p.ID] = p
		s.productIDBySKU[p.SKU] = p.ID
	}
	for _, user := range seedUsers(now) {
		s.usersByUsername[user.Username] = user
	}
	return s
}

func seedUsers(now time.Time) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		slog.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct{ username, password, role string }{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("memory store: hash seed password for %s: %v", u.username, err))
		}
		users = append(users, domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: username %q already exists", store.ErrConflict, user.Username)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// page slices items for the 1-based page, tolerating out of range pages.
func page[T any](items []T, pageNo int, limit int) []T {
	pageNo, limit = domain.NormalizePage(pageNo, limit)
	start := (pageNo - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return slices.Clone(items[start:end])
}

func containsFold(haystack string, needle string) bool {
	folder := cases.Fold()
	return strings.Contains(folder.String(haystack), folder.String(needle))
}

func cloneProduct(p domain.Product) domain.Product {
	p.Vendors = cloneStrings(p.Vendors)
	p.Images = cloneStrings(p.Images)
	if p.DeletedAt != nil {
		at := *p.DeletedAt
		p.DeletedAt = &at
	}
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	o.Vendors = cloneStrings(o.Vendors)
	return o
}

func cloneSale(s domain.Sale) domain.Sale {
	s.Items = slices.Clone(s.Items)
	return s
}

func cloneEstimate(e domain.Estimate) domain.Estimate {
	e.Items = slices.Clone(e.Items)
	return e
}

func cloneStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}
