package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lojapet/backend/internal/domain"
	"lojapet/backend/internal/store"
	"lojapet/backend/internal/store/memory"
)

func newTestService(t *testing.T, strictStock bool) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded(strictStock)
	return New(repo, nil, 5, time.Minute), repo
}

func int64Ptr(v int64) *int64 { return &v }

func TestRecordSaleRecomputesTotal(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-racao-premium-15", SaleMode: domain.SaleModePerKg, Quantity: 2},
			{ProductID: "prod-coleira-m", SaleMode: domain.SaleModePerUnit, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCash,
		DiscountCents: 200,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	// 2kg * 1100 + 1 * 3500 - 200
	if sale.TotalCents != 5500 {
		t.Fatalf("total = %d, want 5500", sale.TotalCents)
	}
	if len(sale.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(sale.Items))
	}
	if sale.Items[0].SubtotalCents != 2200 || sale.Items[1].SubtotalCents != 3500 {
		t.Fatalf("subtotals = %d/%d, want 2200/3500", sale.Items[0].SubtotalCents, sale.Items[1].SubtotalCents)
	}
}

func TestRecordSaleRejectsStalePrices(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-coleira-m", SaleMode: domain.SaleModePerUnit, Quantity: 1, UnitPriceCents: int64Ptr(2900)},
		},
		PaymentMethod: domain.PaymentPix,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	// A hint within the epsilon passes and the quoted price wins.
	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-coleira-m", SaleMode: domain.SaleModePerUnit, Quantity: 1, UnitPriceCents: int64Ptr(3503)},
		},
		PaymentMethod: domain.PaymentPix,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if sale.Items[0].UnitPriceCents != 3500 {
		t.Fatalf("persisted unit price = %d, want quoted 3500", sale.Items[0].UnitPriceCents)
	}
}

func TestRecordSaleClampsStockAtZero(t *testing.T) {
	svc, repo := newTestService(t, false)
	ctx := context.Background()

	sell := func(kg float64) domain.Sale {
		t.Helper()
		sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
			Items: []domain.SaleLineRequest{
				{ProductID: "prod-racao-filhote-10", SaleMode: domain.SaleModePerKg, Quantity: kg},
			},
			PaymentMethod: domain.PaymentCash,
		})
		if err != nil {
			t.Fatalf("record sale of %.1fkg: %v", kg, err)
		}
		return sale
	}

	stock := func() float64 {
		t.Helper()
		p, err := repo.GetProduct(ctx, "prod-racao-filhote-10")
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		return p.StockKg
	}

	sell(2)
	if got := stock(); got != 18 {
		t.Fatalf("stock after 2kg = %v, want 18", got)
	}
	sell(15)
	if got := stock(); got != 3 {
		t.Fatalf("stock after 15kg = %v, want 3", got)
	}
	lastSale := sell(5)
	if got := stock(); got != 0 {
		t.Fatalf("stock after 5kg = %v, want clamp to 0", got)
	}

	// The movement records what physically left, not the oversold amount.
	movements, err := repo.ListStockMovements(ctx, 1)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("movements = %d, want 1", len(movements))
	}
	m := movements[0]
	if m.Quantity != -3 {
		t.Fatalf("movement quantity = %v, want -3", m.Quantity)
	}
	if m.SaleID != lastSale.ID || m.Type != domain.MovementOut {
		t.Fatalf("movement = %+v, want saida linked to %s", m, lastSale.ID)
	}
}

func TestRecordSaleStrictModeRejects(t *testing.T) {
	svc, repo := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-racao-filhote-10", SaleMode: domain.SaleModePerKg, Quantity: 25},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	p, err := repo.GetProduct(ctx, "prod-racao-filhote-10")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockKg != 20 {
		t.Fatalf("stock = %v, want untouched 20", p.StockKg)
	}
}

func TestRecordSaleStrictModeCountsDuplicateLines(t *testing.T) {
	svc, repo := newTestService(t, true)
	ctx := context.Background()

	// Each line alone fits the 20kg on the shelf; together they do not.
	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-racao-filhote-10", SaleMode: domain.SaleModePerKg, Quantity: 15},
			{ProductID: "prod-racao-filhote-10", SaleMode: domain.SaleModePerKg, Quantity: 15},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	p, err := repo.GetProduct(ctx, "prod-racao-filhote-10")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockKg != 20 {
		t.Fatalf("stock = %v, want untouched 20", p.StockKg)
	}
}

func TestRecordSaleRejectsExcessiveDiscount(t *testing.T) {
	svc, repo := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-racao-premium-15", SaleMode: domain.SaleModePerKg, Quantity: 2},
		},
		PaymentMethod: domain.PaymentCash,
		DiscountCents: 5000,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for desconto above items total", err)
	}

	p, err := repo.GetProduct(ctx, "prod-racao-premium-15")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockKg != 45 {
		t.Fatalf("stock = %v, want untouched 45", p.StockKg)
	}
}

type deadlineCheckStore struct {
	*memory.Store
	sawDeadline bool
}

func (d *deadlineCheckStore) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	_, d.sawDeadline = ctx.Deadline()
	return d.Store.CreateSale(ctx, req)
}

func TestRecordSaleSetsStoreDeadline(t *testing.T) {
	repo := &deadlineCheckStore{Store: memory.NewSeeded(false)}
	svc := New(repo, nil, 5, time.Minute)

	if _, err := svc.RecordSale(context.Background(), domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-coleira-m", SaleMode: domain.SaleModePerUnit, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCash,
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !repo.sawDeadline {
		t.Fatal("sale write reached the store without a context deadline")
	}
}

func TestRecordSaleUnknownProductLeavesNothingBehind(t *testing.T) {
	svc, repo := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-racao-premium-15", SaleMode: domain.SaleModePerKg, Quantity: 2},
			{ProductID: "prod-nope", SaleMode: domain.SaleModePerUnit, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	p, err := repo.GetProduct(ctx, "prod-racao-premium-15")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockKg != 45 {
		t.Fatalf("stock = %v, want untouched 45", p.StockKg)
	}
	movements, err := repo.ListStockMovements(ctx, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("movements = %d, want none", len(movements))
	}
}

func TestCashSessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.CloseCashSession(ctx, domain.CashCloseRequest{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("close without open: err = %v, want ErrConflict", err)
	}
	if _, err := svc.Supply(ctx, domain.CashAmountRequest{AmountCents: 100}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("supply without open: err = %v, want ErrConflict", err)
	}

	opened, err := svc.OpenCashSession(ctx, domain.CashOpenRequest{InitialCents: 10000})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Status != domain.SessionOpen {
		t.Fatalf("status = %s, want aberto", opened.Status)
	}

	if _, err := svc.OpenCashSession(ctx, domain.CashOpenRequest{InitialCents: 500}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("double open: err = %v, want ErrConflict", err)
	}

	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-coleira-m", SaleMode: domain.SaleModePerUnit, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCash,
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if _, err := svc.Supply(ctx, domain.CashAmountRequest{AmountCents: 2000, Description: "troco"}); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if _, err := svc.Withdraw(ctx, domain.CashAmountRequest{AmountCents: 1000, Description: "sangria almoco"}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	rec, err := svc.Reconciliation(ctx)
	if err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if rec == nil {
		t.Fatal("reconciliation = nil, want open session projection")
	}
	// 10000 initial + 3500 sale + 2000 supply - 1000 withdrawal
	if rec.EstimatedCents != 14500 {
		t.Fatalf("estimated = %d, want 14500", rec.EstimatedCents)
	}
	if rec.SalesCount != 1 || rec.SalesCents != 3500 {
		t.Fatalf("sales = %d/%d, want 1/3500", rec.SalesCount, rec.SalesCents)
	}

	again, err := svc.Reconciliation(ctx)
	if err != nil {
		t.Fatalf("reconciliation again: %v", err)
	}
	if again.EstimatedCents != rec.EstimatedCents || again.SalesCount != rec.SalesCount {
		t.Fatalf("projection changed between reads: %+v vs %+v", again, rec)
	}

	closed, err := svc.CloseCashSession(ctx, domain.CashCloseRequest{Observation: "dia normal"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Session.Status != domain.SessionClosed {
		t.Fatalf("status = %s, want fechado", closed.Session.Status)
	}
	if closed.Session.FinalCents == nil || *closed.Session.FinalCents != 14500 {
		t.Fatalf("final = %v, want estimated 14500", closed.Session.FinalCents)
	}

	current, err := svc.CurrentCashSession(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != nil {
		t.Fatalf("current = %+v, want nil after close", current)
	}

	history, err := svc.CashSessionHistory(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != opened.ID {
		t.Fatalf("history = %+v, want the closed session", history)
	}
}

func TestCloseCashSessionHonorsCountedBalance(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.OpenCashSession(ctx, domain.CashOpenRequest{InitialCents: 5000}); err != nil {
		t.Fatalf("open: %v", err)
	}
	closed, err := svc.CloseCashSession(ctx, domain.CashCloseRequest{FinalCents: int64Ptr(4700)})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Session.FinalCents == nil || *closed.Session.FinalCents != 4700 {
		t.Fatalf("final = %v, want counted 4700", closed.Session.FinalCents)
	}
	if closed.EstimatedCents != 5000 {
		t.Fatalf("estimated = %d, want 5000", closed.EstimatedCents)
	}
}

func TestToggleExpensePaidMaterializesOncePerMonth(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	def, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Aluguel",
		Category:    "fixo",
		AmountCents: 150000,
		DueDate:     "2026-01-10",
		Recurrence:  domain.RecurrenceMonthly,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	toggled, err := svc.ToggleExpensePaid(ctx, def.ID, march)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.Paid || toggled.OriginID != def.ID {
		t.Fatalf("toggled = %+v, want paid instance of %s", toggled, def.ID)
	}
	if toggled.DueDate.Month() != time.March || toggled.DueDate.Day() != 10 {
		t.Fatalf("due date = %v, want 2026-03-10", toggled.DueDate)
	}

	list, err := svc.ListExpenses(ctx, march, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expenses in march = %d, want exactly 1 (no virtual duplicate)", len(list))
	}
	if list[0].Virtual {
		t.Fatalf("expense = %+v, want materialized instance", list[0])
	}

	// Second toggle flips the same instance back, never a second row.
	back, err := svc.ToggleExpensePaid(ctx, def.ID, march)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if back.Paid {
		t.Fatalf("expense still paid after second toggle")
	}
	if back.ID != toggled.ID {
		t.Fatalf("second toggle hit %s, want same instance %s", back.ID, toggled.ID)
	}
	list, err = svc.ListExpenses(ctx, march, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expenses in march = %d, want still 1", len(list))
	}

	// Other months keep projecting virtually.
	april := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	list, err = svc.ListExpenses(ctx, april, nil)
	if err != nil {
		t.Fatalf("list april: %v", err)
	}
	if len(list) != 1 || !list[0].Virtual {
		t.Fatalf("april = %+v, want one virtual projection", list)
	}
}

func TestToggleExpensePaidRejectsWrongMonthForOneOff(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	oneOff, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Conserto balanca",
		Category:    "manutencao",
		AmountCents: 8000,
		DueDate:     "2026-03-15",
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	april := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.ToggleExpensePaid(ctx, oneOff.ID, april); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("toggle for foreign month: err = %v, want ErrValidation", err)
	}

	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	toggled, err := svc.ToggleExpensePaid(ctx, oneOff.ID, march)
	if err != nil {
		t.Fatalf("toggle for own month: %v", err)
	}
	if !toggled.Paid {
		t.Fatalf("expense = %+v, want paid", toggled)
	}

	// A one-off toggled without a month flips in place.
	back, err := svc.ToggleExpensePaid(ctx, oneOff.ID, time.Time{})
	if err != nil {
		t.Fatalf("toggle without month: %v", err)
	}
	if back.Paid {
		t.Fatalf("expense still paid after flip back")
	}
}

func TestExpenseSummaryCountsEachExpenseOnce(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	def, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Internet",
		Category:    "fixo",
		AmountCents: 10000,
		DueDate:     "2026-01-05",
		Recurrence:  domain.RecurrenceMonthly,
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	if _, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Banho e tosa equipamento",
		Category:    "equipamento",
		AmountCents: 25000,
		Paid:        true,
		DueDate:     "2026-03-15",
	}); err != nil {
		t.Fatalf("create one-off: %v", err)
	}

	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.ToggleExpensePaid(ctx, def.ID, march); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	summary, err := svc.ExpenseSummary(ctx, march)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalCents != 35000 {
		t.Fatalf("total = %d, want 35000 (instance counted once)", summary.TotalCents)
	}
	if summary.PaidCents != 35000 || summary.PendingCents != 0 {
		t.Fatalf("paid/pending = %d/%d, want 35000/0", summary.PaidCents, summary.PendingCents)
	}
	if len(summary.ByCategory) != 2 {
		t.Fatalf("categories = %+v, want 2", summary.ByCategory)
	}
}

func TestStockAlerts(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	// Drop the shampoo below its minimum units.
	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prod-shampoo-500", SaleMode: domain.SaleModePerUnit, Quantity: 5},
		},
		PaymentMethod: domain.PaymentCard,
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	resp, err := svc.StockAlerts(ctx)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}

	byID := make(map[string]domain.StockAlert, len(resp.Alerts))
	for _, a := range resp.Alerts {
		byID[a.ProductID] = a
	}

	// 3 units left against a minimum of 4.
	if _, ok := byID["prod-shampoo-500"]; !ok {
		t.Fatalf("expected unit alert for prod-shampoo-500, got %+v", resp.Alerts)
	}
	// 9kg on the shelf is under the absolute floor.
	if _, ok := byID["prod-racao-gato-3"]; !ok {
		t.Fatalf("expected low-stock alert for prod-racao-gato-3, got %+v", resp.Alerts)
	}
	// Plenty of stock and no consumption pressure.
	if _, ok := byID["prod-racao-premium-15"]; ok {
		t.Fatalf("unexpected alert for prod-racao-premium-15")
	}
}

func TestAddStockEntryAppendsEntradaMovement(t *testing.T) {
	svc, repo := newTestService(t, false)
	ctx := context.Background()

	p, err := svc.AddStockEntry(ctx, "prod-racao-gato-3", domain.StockEntryRequest{QuantityKg: 6, Reason: "reposicao"})
	if err != nil {
		t.Fatalf("stock entry: %v", err)
	}
	if p.StockKg != 15 {
		t.Fatalf("stock = %v, want 15", p.StockKg)
	}

	movements, err := repo.ListStockMovements(ctx, 1)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 || movements[0].Type != domain.MovementIn || movements[0].Quantity != 6 {
		t.Fatalf("movement = %+v, want entrada of 6kg", movements)
	}
}
