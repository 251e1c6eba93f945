package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	NeedToOrder int             `json:"need_to_order"`
	Vendors     []string        `json:"vendors"`
	Images      []string        `json:"images"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

func (p Product) Deleted() bool {
	return p.DeletedAt != nil
}

// NormalizeSKU returns the canonical form used for lookups and uniqueness.
// MaxQuantity bounds stock levels and item counts to the INTEGER column range.
const MaxQuantity = math.MaxInt32

func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

type ProductCreateRequest struct {
	SKU         string          `json:"sku" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Category    string          `json:"category" validate:"max=100"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0,lte=2147483647"`
	NeedToOrder int             `json:"need_to_order" validate:"gte=0,lte=2147483647"`
	Vendors     []string        `json:"vendors" validate:"dive,max=120"`
	Images      []string        `json:"images" validate:"dive,max=500"`
}

type ProductUpdateRequest struct {
	SKU         *string          `json:"sku,omitempty" validate:"omitempty,max=64"`
	Name        *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Category    *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty" validate:"omitempty,gte=0,lte=2147483647"`
	NeedToOrder *int             `json:"need_to_order,omitempty" validate:"omitempty,gte=0,lte=2147483647"`
	Vendors     *[]string        `json:"vendors,omitempty"`
	Images      *[]string        `json:"images,omitempty"`
}

type ProductQuery struct {
	Search string
	Page   int
	Limit  int
}

// Offset is the zero-based row offset of the requested page.
func (q ProductQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type ProductListResponse struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
}

type StockItem struct {
	SKU      string `json:"sku"`
	Qty      int    `json:"qty"`
	Quantity int    `json:"quantity,omitempty"`
}

// Amount returns qty, falling back to the quantity alias.
func (i StockItem) Amount() int {
	if i.Qty != 0 {
		return i.Qty
	}
	return i.Quantity
}

type StockAdjustRequest struct {
	Items []StockItem `json:"items"`
}

type StockMovement struct {
	SKU       string `json:"sku"`
	ProductID string `json:"product_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
}

type StockAdjustResponse struct {
	Message string          `json:"message"`
	Items   []StockMovement `json:"items"`
}

type ChangeAction string

const (
	ChangeActionCreate ChangeAction = "create"
	ChangeActionUpdate ChangeAction = "update"
	ChangeActionDelete ChangeAction = "delete"
)

type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type ProductChangeLog struct {
	ID        string                 `json:"id"`
	ProductID string                 `json:"product_id"`
	Action    ChangeAction           `json:"action"`
	Changes   map[string]FieldChange `json:"changes"`
	Actor     string                 `json:"actor"`
	CreatedAt time.Time              `json:"created_at"`
}

type ChangeLogQuery struct {
	ProductID string
	Action    ChangeAction
	Page      int
	Limit     int
}

func (q ChangeLogQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type ChangeLogListResponse struct {
	Logs       []ProductChangeLog `json:"logs"`
	Pagination Pagination         `json:"pagination"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusReceived  = "received"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	SKU         string    `json:"sku"`
	ProductName string    `json:"product_name"`
	Vendors     []string  `json:"vendors"`
	Count       int       `json:"count"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type OrderCreateRequest struct {
	ProductID string   `json:"product_id"`
	SKU       string   `json:"sku"`
	Vendors   []string `json:"vendors" validate:"dive,max=120"`
	Count     int      `json:"count" validate:"gte=1,lte=2147483647"`
	Note      string   `json:"note" validate:"max=500"`
}

type OrderQuery struct {
	Status string
	Page   int
	Limit  int
}

type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

type SaleLine struct {
	ProductID string          `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
	PaymentMethodOther    = "other"
)

type SalePayment struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	Change    decimal.Decimal `json:"change"`
}

type Sale struct {
	ID        string          `json:"id"`
	Items     []SaleLine      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Payment   SalePayment     `json:"payment"`
	Cashier   string          `json:"cashier"`
	CreatedAt time.Time       `json:"created_at"`
}

type SaleItemRequest struct {
	SKU       string           `json:"sku" validate:"required"`
	Qty       int              `json:"qty" validate:"gte=1,lte=2147483647"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type SalePaymentRequest struct {
	Method    string          `json:"method" validate:"required,oneof=cash card transfer other"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=120"`
}

type SaleCreateRequest struct {
	Items   []SaleItemRequest  `json:"items" validate:"required,min=1,dive"`
	Payment SalePaymentRequest `json:"payment"`
}

type SaleListResponse struct {
	Sales      []Sale     `json:"sales"`
	Pagination Pagination `json:"pagination"`
}

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "PENDING"
	PaymentStatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentStatusPaid          PaymentStatus = "PAID"
)

type Invoice struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Status       PaymentStatus   `json:"status"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	EstimateID   string          `json:"estimate_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type InvoiceCreateRequest struct {
	Number       string          `json:"number" validate:"max=64"`
	CustomerName string          `json:"customer_name" validate:"required,max=200"`
	Total        decimal.Decimal `json:"total"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
}

type BillingRecord struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	CustomerName string          `json:"customer_name"`
	FileRef      string          `json:"file_ref"`
	Total        decimal.Decimal `json:"total"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Status       PaymentStatus   `json:"status"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type BillingCreateRequest struct {
	Number       string          `json:"number" validate:"max=64"`
	CustomerName string          `json:"customer_name" validate:"required,max=200"`
	FileRef      string          `json:"file_ref" validate:"max=500"`
	Total        decimal.Decimal `json:"total"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type PaymentResponse struct {
	Success    bool            `json:"success"`
	Remaining  decimal.Decimal `json:"remaining"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Status     PaymentStatus   `json:"status"`
}

type PayableQuery struct {
	Status PaymentStatus
	Page   int
	Limit  int
}

type InvoiceListResponse struct {
	Invoices   []Invoice  `json:"invoices"`
	Pagination Pagination `json:"pagination"`
}

type BillingListResponse struct {
	Records    []BillingRecord `json:"records"`
	Pagination Pagination      `json:"pagination"`
}

const (
	EstimateStatusDraft    = "draft"
	EstimateStatusApproved = "approved"
	EstimateStatusInvoiced = "invoiced"
)

type EstimateLine struct {
	Description string          `json:"description"`
	SKU         string          `json:"sku,omitempty"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Estimate struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	CustomerName string          `json:"customer_name"`
	Items        []EstimateLine  `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
	InvoiceID    string          `json:"invoice_id,omitempty"`
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (e Estimate) CanApprove() bool {
	return e.Status == EstimateStatusDraft
}

func (e Estimate) CanInvoice() bool {
	return e.Status == EstimateStatusDraft || e.Status == EstimateStatusApproved
}

type EstimateLineRequest struct {
	Description string          `json:"description" validate:"required,max=300"`
	SKU         string          `json:"sku" validate:"max=64"`
	Qty         int             `json:"qty" validate:"gte=1,lte=2147483647"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type EstimateCreateRequest struct {
	CustomerName string                `json:"customer_name" validate:"required,max=200"`
	Items        []EstimateLineRequest `json:"items" validate:"required,min=1,dive"`
	ValidUntil   *time.Time            `json:"valid_until,omitempty"`
}

type EstimateInvoiceRequest struct {
	DueDate *time.Time `json:"due_date,omitempty"`
}

type EstimateQuery struct {
	Status string
	Page   int
	Limit  int
}

type EstimateListResponse struct {
	Estimates  []Estimate `json:"estimates"`
	Pagination Pagination `json:"pagination"`
}

type EstimateInvoiceResponse struct {
	Estimate Estimate `json:"estimate"`
	Invoice  Invoice  `json:"invoice"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=admin cashier"`
}

type ReorderResponse struct {
	Created []Order `json:"created"`
	Skipped int     `json:"skipped"`
}
