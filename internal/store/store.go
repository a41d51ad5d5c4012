package store

import (
	"context"
	"errors"
	"time"

	"lojapet/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockConflict reports a concurrent-update collision on stock rows
	// (serialization failure). Callers may retry the whole sale.
	ErrStockConflict = errors.New("concurrent stock update")
)

// Repository is the persistence boundary. Both implementations guarantee
// that CreateSale, OpenCashSession and CloseCashSession are atomic: either
// every row they touch is applied or none is.
type Repository interface {
	ListProducts(ctx context.Context, search string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	DeactivateProduct(ctx context.Context, id string) error

	// CreateSale persists the sale header, its items, the per-line stock
	// decrements and the matching saida movements as one unit. Prices are
	// resolved from the product rows read inside the same transaction.
	CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error)
	GetSale(ctx context.Context, id string) (domain.Sale, error)
	ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error)

	AddStockEntry(ctx context.Context, productID string, qtyKg float64, qtyUnits int, reason string) (domain.Product, error)
	ListStockMovements(ctx context.Context, limit int) ([]domain.StockMovement, error)
	// OutboundKgSince aggregates saida movement quantities per weight-based
	// product from the cutoff onward. Feeds the consumption-rate alerts.
	OutboundKgSince(ctx context.Context, since time.Time) (map[string]float64, error)

	OpenCashSession(ctx context.Context, initialCents int64) (domain.CashSession, error)
	CurrentCashSession(ctx context.Context) (*domain.CashSession, error)
	AppendCashMovement(ctx context.Context, sessionID, movType string, amountCents int64, description string) (domain.CashMovement, error)
	CloseCashSession(ctx context.Context, sessionID string, finalCents int64, observation string) (domain.CashSession, error)
	ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error)
	ListClosedCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error)
	SalesByPaymentSince(ctx context.Context, since time.Time) ([]domain.PaymentTotal, error)

	ListExpensesDueBetween(ctx context.Context, from, to time.Time) ([]domain.Expense, error)
	ListRecurringExpenses(ctx context.Context) ([]domain.Expense, error)
	GetExpense(ctx context.Context, id string) (domain.Expense, error)
	CreateExpense(ctx context.Context, e domain.Expense) (domain.Expense, error)
	UpdateExpense(ctx context.Context, e domain.Expense) (domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	SetExpensePaid(ctx context.Context, id string, paid bool, paidAt *time.Time) (domain.Expense, error)
	// FindExpenseInstance returns the materialized instance of a recurring
	// definition for the month of the given date, or nil when none exists.
	FindExpenseInstance(ctx context.Context, originID string, month time.Time) (*domain.Expense, error)
	// MaterializeExpenseInstance inserts a per-month copy of a recurring
	// definition. Idempotent: a concurrent duplicate resolves to the row
	// that won, never to a second instance.
	MaterializeExpenseInstance(ctx context.Context, e domain.Expense) (domain.Expense, error)

	ListClients(ctx context.Context) ([]domain.Client, error)
	CreateClient(ctx context.Context, c domain.Client) (domain.Client, error)
	UpdateClient(ctx context.Context, c domain.Client) (domain.Client, error)
	DeleteClient(ctx context.Context, id string) error

	ListSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error

	GetUser(ctx context.Context, username string) (domain.UserAccount, error)
	CreateUser(ctx context.Context, u domain.UserAccount) error
}
