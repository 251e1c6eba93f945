package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"posledger/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StockShortageError reports a decrement that would take stock below zero.
type StockShortageError struct {
	Identifier string
	Available  int
	Requested  int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Identifier, e.Available, e.Requested)
}

func (e *StockShortageError) Unwrap() error {
	return ErrInsufficientStock
}

type ProductStore interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// GetProductByID returns soft-deleted products as well.
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SoftDeleteProduct(ctx context.Context, id string, at time.Time) (*domain.Product, error)
	ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error)
	CountProducts(ctx context.Context, search string) (int, error)
	ListLowStockProducts(ctx context.Context, limit int) ([]domain.Product, error)
	// AdjustStock applies delta atomically. A negative delta that would leave
	// stock below zero fails with *StockShortageError and changes nothing.
	AdjustStock(ctx context.Context, sku string, delta int) (before *domain.Product, after *domain.Product, err error)
}

type ChangeLogStore interface {
	CreateChangeLog(ctx context.Context, entry domain.ProductChangeLog) error
	ListChangeLogs(ctx context.Context, query domain.ChangeLogQuery) ([]domain.ProductChangeLog, error)
	CountChangeLogs(ctx context.Context, query domain.ChangeLogQuery) (int, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, query domain.OrderQuery) ([]domain.Order, int, error)
	HasPendingOrder(ctx context.Context, productID string) (bool, error)
	// CancelOrder moves a pending order to cancelled; other states yield ErrConflict.
	CancelOrder(ctx context.Context, id string, at time.Time) (*domain.Order, error)
	// ReceiveOrder marks a pending order received and adds its count to the
	// product's stock in one transaction.
	ReceiveOrder(ctx context.Context, id string, at time.Time) (*domain.Order, domain.StockMovement, error)
}

type SaleStore interface {
	// CreateSale persists the sale and decrements stock for every line. A
	// shortage on any line aborts the whole sale.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockMovement, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, page int, limit int) ([]domain.Sale, int, error)
}

type InvoiceStore interface {
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, query domain.PayableQuery) ([]domain.Invoice, int, error)
	// ApplyInvoicePayment locks the invoice, passes it to apply and persists the result.
	ApplyInvoicePayment(ctx context.Context, id string, apply func(domain.Invoice) (domain.Invoice, error)) (*domain.Invoice, error)
}

type BillingStore interface {
	CreateBillingRecord(ctx context.Context, record domain.BillingRecord) (*domain.BillingRecord, error)
	GetBillingRecord(ctx context.Context, id string) (*domain.BillingRecord, error)
	ListBillingRecords(ctx context.Context, query domain.PayableQuery) ([]domain.BillingRecord, int, error)
	ApplyBillingPayment(ctx context.Context, id string, apply func(domain.BillingRecord) (domain.BillingRecord, error)) (*domain.BillingRecord, error)
}

type EstimateStore interface {
	// CreateEstimate assigns the next EST- number.
	CreateEstimate(ctx context.Context, estimate domain.Estimate) (*domain.Estimate, error)
	GetEstimate(ctx context.Context, id string) (*domain.Estimate, error)
	ListEstimates(ctx context.Context, query domain.EstimateQuery) ([]domain.Estimate, int, error)
	UpdateEstimate(ctx context.Context, id string, apply func(domain.Estimate) (domain.Estimate, error)) (*domain.Estimate, error)
	// InvoiceEstimate creates invoice for the estimate total and marks the
	// estimate invoiced in one transaction.
	InvoiceEstimate(ctx context.Context, id string, invoice domain.Invoice) (*domain.Estimate, *domain.Invoice, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type Repository interface {
	ProductStore
	ChangeLogStore
	OrderStore
	SaleStore
	InvoiceStore
	BillingStore
	EstimateStore
	UserStore
}
