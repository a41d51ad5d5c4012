package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"lojapet/backend/internal/cache"
	"lojapet/backend/internal/domain"
	"lojapet/backend/internal/pricing"
	"lojapet/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	alertCacheKey      = "stock-alerts"
	consumptionWindow  = 30 * 24 * time.Hour
	lowStockFloorKg    = 10.0
	defaultMinDaysLeft = 7
	saleWriteTimeout   = 10 * time.Second
)

type Service struct {
	repo         store.Repository
	alerts       cache.AlertCache
	epsilonCents int64
	alertTTL     time.Duration
}

func New(repo store.Repository, alerts cache.AlertCache, epsilonCents int64, alertTTL time.Duration) *Service {
	if alerts == nil {
		alerts = cache.NoopAlertCache{}
	}
	if alertTTL <= 0 {
		alertTTL = 60 * time.Second
	}

	return &Service{
		repo:         repo,
		alerts:       alerts,
		epsilonCents: epsilonCents,
		alertTTL:     alertTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, search)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: nome is required", store.ErrValidation)
	}

	switch req.Category {
	case domain.CategoryWeightBased:
		if req.PricePerKgCents < 1 && req.BagPriceCents < 1 {
			return domain.Product{}, fmt.Errorf("%w: weight-based product needs preco_por_kg or preco_saco", store.ErrValidation)
		}
		if req.BagPriceCents > 0 && req.BagWeightKg <= 0 {
			return domain.Product{}, fmt.Errorf("%w: preco_saco requires peso_saco_kg", store.ErrValidation)
		}
	case domain.CategoryUnitBased:
		if req.UnitPriceCents < 1 {
			return domain.Product{}, fmt.Errorf("%w: unit-based product needs preco_unitario", store.ErrValidation)
		}
	default:
		return domain.Product{}, fmt.Errorf("%w: unknown categoria %q", store.ErrValidation, req.Category)
	}

	product := domain.Product{
		Name:            req.Name,
		Brand:           req.Brand,
		Category:        req.Category,
		BagWeightKg:     req.BagWeightKg,
		BagCostCents:    req.BagCostCents,
		BagPriceCents:   req.BagPriceCents,
		PricePerKgCents: req.PricePerKgCents,
		CostPerKgCents:  req.CostPerKgCents,
		StockKg:         req.StockKg,
		MinStockDays:    req.MinStockDays,
		UnitPriceCents:  req.UnitPriceCents,
		UnitCostCents:   req.UnitCostCents,
		StockUnits:      req.StockUnits,
		MinStockUnits:   req.MinStockUnits,
		Active:          true,
	}
	return s.repo.CreateProduct(ctx, product)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Brand != nil {
		product.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.BagWeightKg != nil {
		product.BagWeightKg = *req.BagWeightKg
	}
	if req.BagCostCents != nil {
		product.BagCostCents = *req.BagCostCents
	}
	if req.BagPriceCents != nil {
		product.BagPriceCents = *req.BagPriceCents
	}
	if req.PricePerKgCents != nil {
		product.PricePerKgCents = *req.PricePerKgCents
	}
	if req.CostPerKgCents != nil {
		product.CostPerKgCents = *req.CostPerKgCents
	}
	if req.MinStockDays != nil {
		product.MinStockDays = *req.MinStockDays
	}
	if req.UnitPriceCents != nil {
		product.UnitPriceCents = *req.UnitPriceCents
	}
	if req.UnitCostCents != nil {
		product.UnitCostCents = *req.UnitCostCents
	}
	if req.MinStockUnits != nil {
		product.MinStockUnits = *req.MinStockUnits
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if product.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: nome is required", store.ErrValidation)
	}

	return s.repo.UpdateProduct(ctx, product)
}

func (s *Service) DeactivateProduct(ctx context.Context, id string) error {
	return s.repo.DeactivateProduct(ctx, id)
}

func (s *Service) AddStockEntry(ctx context.Context, productID string, req domain.StockEntryRequest) (domain.Product, error) {
	if req.QuantityKg <= 0 && req.QuantityUnits <= 0 {
		return domain.Product{}, fmt.Errorf("%w: stock entry needs quantidade_kg or quantidade_unidade", store.ErrValidation)
	}
	return s.repo.AddStockEntry(ctx, productID, req.QuantityKg, req.QuantityUnits, strings.TrimSpace(req.Reason))
}

func (s *Service) ListStockMovements(ctx context.Context, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, limit)
}

func validPayment(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentPix, domain.PaymentCard:
		return true
	}
	return false
}

func validSaleMode(mode string) bool {
	switch mode {
	case "", domain.SaleModePerKg, domain.SaleModePerBag, domain.SaleModePerUnit:
		return true
	}
	return false
}

// RecordSale validates the cart, cross-checks any client-supplied prices
// against a fresh quote within the configured epsilon, and then hands the
// whole cart to the store as one atomic unit. The store re-resolves prices
// from the rows it locks, so the check here is advisory: it rejects stale
// frontends early but never decides the persisted amounts.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale needs at least one item", store.ErrValidation)
	}
	if !validPayment(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unknown forma_pagamento %q", store.ErrValidation, req.PaymentMethod)
	}
	if req.DiscountCents < 0 {
		return domain.Sale{}, fmt.Errorf("%w: desconto must not be negative", store.ErrValidation)
	}

	for i, line := range req.Items {
		if line.Quantity <= 0 {
			return domain.Sale{}, fmt.Errorf("%w: item %d quantidade must be positive", store.ErrValidation, i)
		}
		if !validSaleMode(line.SaleMode) {
			return domain.Sale{}, fmt.Errorf("%w: item %d unknown tipo_venda %q", store.ErrValidation, i, line.SaleMode)
		}
		if line.UnitPriceCents == nil && line.SubtotalCents == nil {
			continue
		}

		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.Sale{}, err
		}
		quote, err := pricing.Resolve(product, line.SaleMode, line.Quantity)
		if err != nil {
			return domain.Sale{}, err
		}
		if line.UnitPriceCents != nil && absInt64(*line.UnitPriceCents-quote.UnitPriceCents) > s.epsilonCents {
			log.Printf("[service] WARN: sale rejected, client unit price %d vs quoted %d for %s", *line.UnitPriceCents, quote.UnitPriceCents, line.ProductID)
			return domain.Sale{}, fmt.Errorf("%w: item %d preco_unitario diverges from current price", store.ErrValidation, i)
		}
		if line.SubtotalCents != nil && absInt64(*line.SubtotalCents-quote.SubtotalCents) > s.epsilonCents {
			log.Printf("[service] WARN: sale rejected, client subtotal %d vs quoted %d for %s", *line.SubtotalCents, quote.SubtotalCents, line.ProductID)
			return domain.Sale{}, fmt.Errorf("%w: item %d subtotal diverges from current price", store.ErrValidation, i)
		}
	}

	// The whole atomic unit runs under a deadline: a hung transaction is
	// cancelled and rolled back rather than holding row locks open.
	ctx, cancel := context.WithTimeout(ctx, saleWriteTimeout)
	defer cancel()
	return s.repo.CreateSale(ctx, req)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, from, to)
}

func (s *Service) StockAlerts(ctx context.Context) (domain.StockAlertResponse, error) {
	if cached, ok, err := s.alerts.Get(ctx, alertCacheKey); err != nil {
		log.Printf("[service] WARN: alert cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	products, err := s.repo.ListProducts(ctx, "")
	if err != nil {
		return domain.StockAlertResponse{}, err
	}
	now := time.Now().UTC()
	outbound, err := s.repo.OutboundKgSince(ctx, now.Add(-consumptionWindow))
	if err != nil {
		return domain.StockAlertResponse{}, err
	}

	windowDays := consumptionWindow.Hours() / 24
	alerts := make([]domain.StockAlert, 0, 8)
	for _, p := range products {
		if p.WeightBased() {
			minDays := p.MinStockDays
			if minDays <= 0 {
				minDays = defaultMinDaysLeft
			}
			daily := outbound[p.ID] / windowDays
			if p.StockKg > 0 && daily > 0 {
				daysLeft := p.StockKg / daily
				if daysLeft < float64(minDays) {
					alerts = append(alerts, domain.StockAlert{
						ProductID: p.ID,
						Name:      p.Name,
						Category:  p.Category,
						StockKg:   p.StockKg,
						DailyRate: daily,
						DaysLeft:  daysLeft,
						Reason:    fmt.Sprintf("estoque acaba em %.1f dias no ritmo atual", daysLeft),
					})
					continue
				}
			}
			if p.StockKg < lowStockFloorKg {
				alerts = append(alerts, domain.StockAlert{
					ProductID: p.ID,
					Name:      p.Name,
					Category:  p.Category,
					StockKg:   p.StockKg,
					DailyRate: daily,
					Reason:    fmt.Sprintf("estoque abaixo de %.0fkg", lowStockFloorKg),
				})
			}
			continue
		}

		if p.MinStockUnits > 0 && p.StockUnits > 0 && p.StockUnits < p.MinStockUnits {
			alerts = append(alerts, domain.StockAlert{
				ProductID:  p.ID,
				Name:       p.Name,
				Category:   p.Category,
				StockUnits: p.StockUnits,
				Reason:     fmt.Sprintf("apenas %d unidades em estoque", p.StockUnits),
			})
		}
	}

	resp := domain.StockAlertResponse{
		GeneratedAt: now.Format(time.RFC3339),
		Alerts:      alerts,
	}
	if err := s.alerts.Set(ctx, alertCacheKey, &resp, s.alertTTL); err != nil {
		log.Printf("[service] WARN: alert cache write failed: %v", err)
	}
	return resp, nil
}

func (s *Service) OpenCashSession(ctx context.Context, req domain.CashOpenRequest) (domain.CashSession, error) {
	if req.InitialCents < 0 {
		return domain.CashSession{}, fmt.Errorf("%w: saldo_inicial must not be negative", store.ErrValidation)
	}
	return s.repo.OpenCashSession(ctx, req.InitialCents)
}

func (s *Service) CurrentCashSession(ctx context.Context) (*domain.CashSession, error) {
	return s.repo.CurrentCashSession(ctx)
}

// Reconciliation recomputes the projection over the open session from the
// sale and cash movement ledgers. It never writes, so calling it twice in
// a row yields the same result. Returns nil when no session is open.
func (s *Service) Reconciliation(ctx context.Context) (*domain.Reconciliation, error) {
	session, err := s.repo.CurrentCashSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	rec, err := s.reconcile(ctx, *session)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) reconcile(ctx context.Context, session domain.CashSession) (domain.Reconciliation, error) {
	byPayment, err := s.repo.SalesByPaymentSince(ctx, session.OpenedAt)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	movements, err := s.repo.ListCashMovements(ctx, session.ID)
	if err != nil {
		return domain.Reconciliation{}, err
	}

	rec := domain.Reconciliation{
		Session:   session,
		ByPayment: byPayment,
		Movements: movements,
	}
	for _, pt := range byPayment {
		rec.SalesCount += pt.Count
		rec.SalesCents += pt.TotalCents
	}
	for _, m := range movements {
		switch m.Type {
		case domain.CashSupply:
			rec.SuppliesCents += m.AmountCents
		case domain.CashWithdrawal:
			rec.WithdrawalsCents += m.AmountCents
		}
	}
	rec.EstimatedCents = session.InitialCents + rec.SalesCents + rec.SuppliesCents - rec.WithdrawalsCents
	return rec, nil
}

func (s *Service) Supply(ctx context.Context, req domain.CashAmountRequest) (domain.CashMovement, error) {
	return s.appendMovement(ctx, domain.CashSupply, req)
}

func (s *Service) Withdraw(ctx context.Context, req domain.CashAmountRequest) (domain.CashMovement, error) {
	return s.appendMovement(ctx, domain.CashWithdrawal, req)
}

func (s *Service) appendMovement(ctx context.Context, movType string, req domain.CashAmountRequest) (domain.CashMovement, error) {
	if req.AmountCents <= 0 {
		return domain.CashMovement{}, fmt.Errorf("%w: valor must be positive", store.ErrValidation)
	}
	session, err := s.repo.CurrentCashSession(ctx)
	if err != nil {
		return domain.CashMovement{}, err
	}
	if session == nil {
		return domain.CashMovement{}, fmt.Errorf("%w: no cash session is open", store.ErrConflict)
	}
	return s.repo.AppendCashMovement(ctx, session.ID, movType, req.AmountCents, strings.TrimSpace(req.Description))
}

// CloseCashSession snapshots the reconciliation of the open session and
// closes it. When the request carries no counted saldo_final the estimated
// balance is recorded as the final one.
func (s *Service) CloseCashSession(ctx context.Context, req domain.CashCloseRequest) (domain.Reconciliation, error) {
	session, err := s.repo.CurrentCashSession(ctx)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	if session == nil {
		return domain.Reconciliation{}, fmt.Errorf("%w: no cash session is open", store.ErrConflict)
	}

	rec, err := s.reconcile(ctx, *session)
	if err != nil {
		return domain.Reconciliation{}, err
	}

	final := rec.EstimatedCents
	if req.FinalCents != nil {
		final = *req.FinalCents
	}
	closed, err := s.repo.CloseCashSession(ctx, session.ID, final, strings.TrimSpace(req.Observation))
	if err != nil {
		return domain.Reconciliation{}, err
	}

	rec.Session = closed
	movements, err := s.repo.ListCashMovements(ctx, closed.ID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	rec.Movements = movements
	return rec, nil
}

func (s *Service) CashSessionHistory(ctx context.Context, limit int) ([]domain.CashSession, error) {
	return s.repo.ListClosedCashSessions(ctx, limit)
}

const dateLayout = "2006-01-02"

func parseDate(val string) (time.Time, error) {
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", store.ErrValidation, val)
	}
	return t.UTC(), nil
}

func monthBounds(month time.Time) (time.Time, time.Time) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// dueInMonth projects a recurring definition's anchor day into the target
// month, clamping day 29..31 to the month's last day.
func dueInMonth(anchor, month time.Time) time.Time {
	start, end := monthBounds(month)
	day := anchor.Day()
	lastDay := end.AddDate(0, 0, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(start.Year(), start.Month(), day, 0, 0, 0, 0, time.UTC)
}

func (s *Service) recurringAppliesTo(def domain.Expense, month time.Time) bool {
	start, end := monthBounds(month)
	switch def.Recurrence {
	case domain.RecurrenceMonthly:
		anchorMonth := time.Date(def.DueDate.Year(), def.DueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		return !start.Before(anchorMonth)
	case domain.RecurrencePeriod:
		if def.PeriodStart == nil || def.PeriodEnd == nil {
			return false
		}
		return def.PeriodStart.Before(end) && !def.PeriodEnd.Before(start)
	}
	return false
}

// ListExpenses merges the month's persisted rows with virtual projections
// of recurring definitions. A definition that already materialized an
// instance for the month contributes only the instance.
func (s *Service) ListExpenses(ctx context.Context, month time.Time, paidFilter *bool) ([]domain.Expense, error) {
	start, end := monthBounds(month)
	persisted, err := s.repo.ListExpensesDueBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	recurring, err := s.repo.ListRecurringExpenses(ctx)
	if err != nil {
		return nil, err
	}

	materialized := make(map[string]bool, len(persisted))
	for _, e := range persisted {
		if e.OriginID != "" {
			materialized[e.OriginID] = true
		}
	}

	out := make([]domain.Expense, 0, len(persisted)+len(recurring))
	out = append(out, persisted...)
	for _, def := range recurring {
		if !s.recurringAppliesTo(def, month) || materialized[def.ID] {
			continue
		}
		out = append(out, domain.Expense{
			ID:          def.ID,
			Description: def.Description,
			Category:    def.Category,
			AmountCents: def.AmountCents,
			Paid:        false,
			DueDate:     dueInMonth(def.DueDate, month),
			Recurrence:  def.Recurrence,
			OriginID:    def.ID,
			Virtual:     true,
		})
	}

	if paidFilter != nil {
		filtered := out[:0]
		for _, e := range out {
			if e.Paid == *paidFilter {
				filtered = append(filtered, e)
			}
		}
		out = filtered
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (s *Service) ExpenseSummary(ctx context.Context, month time.Time) (domain.ExpenseSummary, error) {
	expenses, err := s.ListExpenses(ctx, month, nil)
	if err != nil {
		return domain.ExpenseSummary{}, err
	}

	summary := domain.ExpenseSummary{Month: month.Format("2006-01")}
	byCategory := make(map[string]int64)
	for _, e := range expenses {
		summary.TotalCents += e.AmountCents
		if e.Paid {
			summary.PaidCents += e.AmountCents
		} else {
			summary.PendingCents += e.AmountCents
		}
		cat := e.Category
		if cat == "" {
			cat = "outros"
		}
		byCategory[cat] += e.AmountCents
	}

	cats := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		summary.ByCategory = append(summary.ByCategory, domain.CategoryTotal{Category: cat, TotalCents: byCategory[cat]})
	}
	return summary, nil
}

func (s *Service) expenseFromRequest(req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return domain.Expense{}, fmt.Errorf("%w: descricao is required", store.ErrValidation)
	}
	if req.AmountCents <= 0 {
		return domain.Expense{}, fmt.Errorf("%w: valor must be positive", store.ErrValidation)
	}

	e := domain.Expense{
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		AmountCents: req.AmountCents,
		Paid:        req.Paid,
		Recurrence:  req.Recurrence,
	}
	if e.Recurrence == "" {
		e.Recurrence = domain.RecurrenceNone
	}

	if req.DueDate != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			return domain.Expense{}, err
		}
		e.DueDate = due
	} else if e.Recurrence == domain.RecurrenceNone {
		return domain.Expense{}, fmt.Errorf("%w: data_vencimento is required", store.ErrValidation)
	}

	if e.Recurrence == domain.RecurrencePeriod {
		if req.PeriodStart == "" || req.PeriodEnd == "" {
			return domain.Expense{}, fmt.Errorf("%w: recorrencia periodo needs data_inicio and data_fim", store.ErrValidation)
		}
	}
	if req.PeriodStart != "" {
		t, err := parseDate(req.PeriodStart)
		if err != nil {
			return domain.Expense{}, err
		}
		e.PeriodStart = &t
	}
	if req.PeriodEnd != "" {
		t, err := parseDate(req.PeriodEnd)
		if err != nil {
			return domain.Expense{}, err
		}
		e.PeriodEnd = &t
	}
	if e.Recurrence != domain.RecurrenceNone && e.DueDate.IsZero() {
		if e.PeriodStart != nil {
			e.DueDate = *e.PeriodStart
		} else {
			return domain.Expense{}, fmt.Errorf("%w: recurring expense needs data_vencimento as anchor", store.ErrValidation)
		}
	}
	if e.Paid {
		now := time.Now().UTC()
		e.PaidAt = &now
	}
	return e, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	e, err := s.expenseFromRequest(req)
	if err != nil {
		return domain.Expense{}, err
	}
	return s.repo.CreateExpense(ctx, e)
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	existing, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}
	e, err := s.expenseFromRequest(req)
	if err != nil {
		return domain.Expense{}, err
	}
	e.ID = existing.ID
	e.OriginID = existing.OriginID
	if existing.Paid == e.Paid {
		e.PaidAt = existing.PaidAt
	}
	return s.repo.UpdateExpense(ctx, e)
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	return s.repo.DeleteExpense(ctx, id)
}

// ToggleExpensePaid flips the paid flag of a concrete expense. For a
// recurring definition the flip is scoped to one month: the first toggle
// materializes a paid instance for that month, later toggles flip the
// instance in place. Toggling the same month twice lands back where it
// started with exactly one instance row.
func (s *Service) ToggleExpensePaid(ctx context.Context, id string, month time.Time) (domain.Expense, error) {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}

	if e.Recurrence == domain.RecurrenceNone {
		if !month.IsZero() && !sameMonth(e.DueDate, month) {
			return domain.Expense{}, fmt.Errorf("%w: expense %s is due in %s, not %s", store.ErrValidation, id, e.DueDate.Format("2006-01"), month.Format("2006-01"))
		}
		return s.flipPaid(ctx, e)
	}

	if month.IsZero() {
		return domain.Expense{}, fmt.Errorf("%w: recurring expense toggle needs mes=YYYY-MM", store.ErrValidation)
	}
	if !s.recurringAppliesTo(e, month) {
		return domain.Expense{}, fmt.Errorf("%w: expense %s does not recur in %s", store.ErrValidation, id, month.Format("2006-01"))
	}

	instance, err := s.repo.FindExpenseInstance(ctx, id, month)
	if err != nil {
		return domain.Expense{}, err
	}
	if instance != nil {
		return s.flipPaid(ctx, *instance)
	}

	now := time.Now().UTC()
	return s.repo.MaterializeExpenseInstance(ctx, domain.Expense{
		Description: e.Description,
		Category:    e.Category,
		AmountCents: e.AmountCents,
		Paid:        true,
		PaidAt:      &now,
		DueDate:     dueInMonth(e.DueDate, month),
		Recurrence:  domain.RecurrenceNone,
		OriginID:    e.ID,
	})
}

func (s *Service) flipPaid(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	paid := !e.Paid
	var paidAt *time.Time
	if paid {
		now := time.Now().UTC()
		paidAt = &now
	}
	return s.repo.SetExpensePaid(ctx, e.ID, paid, paidAt)
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Client{}, fmt.Errorf("%w: nome is required", store.ErrValidation)
	}
	return s.repo.CreateClient(ctx, domain.Client{
		Name:        req.Name,
		Phone:       strings.TrimSpace(req.Phone),
		Observation: strings.TrimSpace(req.Observation),
	})
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Client{}, fmt.Errorf("%w: nome is required", store.ErrValidation)
	}
	return s.repo.UpdateClient(ctx, domain.Client{
		ID:          id,
		Name:        req.Name,
		Phone:       strings.TrimSpace(req.Phone),
		Observation: strings.TrimSpace(req.Observation),
	})
}

func (s *Service) DeleteClient(ctx context.Context, id string) error {
	return s.repo.DeleteClient(ctx, id)
}

func (s *Service) ListSettings(ctx context.Context) (map[string]string, error) {
	return s.repo.ListSettings(ctx)
}

func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: setting key is required", store.ErrValidation)
	}
	return s.repo.SetSetting(ctx, key, value)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
