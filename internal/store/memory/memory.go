package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lojapet/backend/internal/domain"
	"lojapet/backend/internal/pricing"
	"lojapet/backend/internal/store"
	"lojapet/backend/internal/xid"
)

type Store struct {
	mu          sync.RWMutex
	strictStock bool

	products        map[string]domain.Product
	movements       []domain.StockMovement
	salesByID       map[string]domain.Sale
	sessionsByID    map[string]domain.CashSession
	openSessionID   string
	cashMovements   []domain.CashMovement
	expensesByID    map[string]domain.Expense
	instanceByKey   map[string]string
	clientsByID     map[string]domain.Client
	settings        map[string]string
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. The memory store
// is never selected when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "caixa123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"caixa", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded(strictStock bool) *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-racao-premium-15", Name: "Racao Premium Adulto 15kg", Brand: "GoldenPet", Category: domain.CategoryWeightBased,
			BagWeightKg: 15, BagCostCents: 9500, BagPriceCents: 14900, PricePerKgCents: 1100, StockKg: 45, MinStockDays: 7, Active: true, CreatedAt: now},
		{ID: "prod-racao-filhote-10", Name: "Racao Filhote 10kg", Brand: "GoldenPet", Category: domain.CategoryWeightBased,
			BagWeightKg: 10, BagCostCents: 8200, BagPriceCents: 12500, PricePerKgCents: 1390, StockKg: 20, MinStockDays: 7, Active: true, CreatedAt: now},
		{ID: "prod-racao-gato-3", Name: "Racao Gato Castrado 3kg", Brand: "Felino", Category: domain.CategoryWeightBased,
			BagWeightKg: 3, BagCostCents: 4100, BagPriceCents: 6200, PricePerKgCents: 2300, StockKg: 9, MinStockDays: 10, Active: true, CreatedAt: now},
		{ID: "prod-coleira-m", Name: "Coleira Nylon M", Brand: "PetWalk", Category: domain.CategoryUnitBased,
			UnitPriceCents: 3500, UnitCostCents: 1800, StockUnits: 12, MinStockUnits: 3, Active: true, CreatedAt: now},
		{ID: "prod-shampoo-500", Name: "Shampoo Neutro 500ml", Brand: "CleanPet", Category: domain.CategoryUnitBased,
			UnitPriceCents: 2890, UnitCostCents: 1500, StockUnits: 8, MinStockUnits: 4, Active: true, CreatedAt: now},
		{ID: "prod-osso-nat", Name: "Osso Natural", Brand: "", Category: domain.CategoryUnitBased,
			UnitPriceCents: 900, UnitCostCents: 400, StockUnits: 30, MinStockUnits: 10, Active: true, CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		strictStock:   strictStock,
		products:      productMap,
		movements:     make([]domain.StockMovement, 0, 128),
		salesByID:     make(map[string]domain.Sale),
		sessionsByID:  make(map[string]domain.CashSession),
		cashMovements: make([]domain.CashMovement, 0, 64),
		expensesByID:  make(map[string]domain.Expense),
		instanceByKey: make(map[string]string),
		clientsByID:   make(map[string]domain.Client),
		settings: map[string]string{
			"meta_diaria":     "50000",
			"taxa_maquininha": "2.5",
		},
		usersByUsername: seedUsers(),
	}
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (s *Store) ListProducts(_ context.Context, search string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Brand), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return p, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = xid.New("prod")
	}
	if _, ok := s.products[p.ID]; ok {
		return domain.Product{}, fmt.Errorf("%w: product %s already exists", store.ErrConflict, p.ID)
	}
	p.Active = true
	p.CreatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, p.ID)
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	p.Active = false
	s.products[id] = p
	return nil
}

func (s *Store) CreateSale(_ context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	saleID := xid.New("sale")

	type resolvedLine struct {
		item  domain.SaleItem
		quote pricing.Quote
	}

	// First pass resolves and checks every line; nothing is mutated until
	// the whole cart is known to be applicable. Strict checks count the
	// cart cumulatively so the same product on two lines cannot pass both.
	lines := make([]resolvedLine, 0, len(req.Items))
	needKg := make(map[string]float64, len(req.Items))
	needUnits := make(map[string]int, len(req.Items))
	var total int64
	for _, lr := range req.Items {
		p, ok := s.products[lr.ProductID]
		if !ok || !p.Active {
			return domain.Sale{}, fmt.Errorf("%w: product %s", store.ErrNotFound, lr.ProductID)
		}
		q, err := pricing.Resolve(p, lr.SaleMode, lr.Quantity)
		if err != nil {
			return domain.Sale{}, err
		}
		needKg[p.ID] += q.DeductKg
		needUnits[p.ID] += q.DeductUnits
		if s.strictStock {
			if p.WeightBased() && p.StockKg < needKg[p.ID] {
				return domain.Sale{}, fmt.Errorf("%w: product %s has %.3fkg, sale needs %.3fkg", store.ErrInsufficientStock, p.ID, p.StockKg, needKg[p.ID])
			}
			if !p.WeightBased() && p.StockUnits < needUnits[p.ID] {
				return domain.Sale{}, fmt.Errorf("%w: product %s has %d units, sale needs %d", store.ErrInsufficientStock, p.ID, p.StockUnits, needUnits[p.ID])
			}
		}
		total += q.SubtotalCents
		lines = append(lines, resolvedLine{
			item: domain.SaleItem{
				SaleID:         saleID,
				ProductID:      lr.ProductID,
				SaleMode:       lr.SaleMode,
				Quantity:       lr.Quantity,
				UnitPriceCents: q.UnitPriceCents,
				SubtotalCents:  q.SubtotalCents,
				CostCents:      q.CostCents,
			},
			quote: q,
		})
	}

	if req.DiscountCents > total {
		return domain.Sale{}, fmt.Errorf("%w: desconto %d exceeds items total %d", store.ErrValidation, req.DiscountCents, total)
	}
	total -= req.DiscountCents

	for _, rl := range lines {
		p := s.products[rl.item.ProductID]
		var moved float64
		if p.WeightBased() {
			moved = math.Min(p.StockKg, rl.quote.DeductKg)
			p.StockKg = math.Max(0, p.StockKg-rl.quote.DeductKg)
		} else {
			moved = float64(min(p.StockUnits, rl.quote.DeductUnits))
			p.StockUnits = max(0, p.StockUnits-rl.quote.DeductUnits)
		}
		s.products[p.ID] = p
		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("sm"),
			ProductID: p.ID,
			Type:      domain.MovementOut,
			Quantity:  -moved,
			Reason:    fmt.Sprintf("Venda #%s", saleID),
			SaleID:    saleID,
			CreatedAt: now,
		})
	}

	sale := domain.Sale{
		ID:            saleID,
		ClientID:      req.ClientID,
		PaymentMethod: req.PaymentMethod,
		DiscountCents: req.DiscountCents,
		TotalCents:    total,
		CreatedAt:     now,
		Items:         make([]domain.SaleItem, 0, len(lines)),
	}
	for _, rl := range lines {
		sale.Items = append(sale.Items, rl.item)
	}
	s.salesByID[saleID] = sale
	return sale, nil
}

func (s *Store) GetSale(_ context.Context, id string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return domain.Sale{}, fmt.Errorf("%w: sale %s", store.ErrNotFound, id)
	}
	return sale, nil
}

func (s *Store) ListSales(_ context.Context, from, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sales, nil
}

func (s *Store) AddStockEntry(_ context.Context, productID string, qtyKg float64, qtyUnits int, reason string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}

	var qty float64
	if p.WeightBased() {
		if qtyKg <= 0 {
			return domain.Product{}, fmt.Errorf("%w: quantidade_kg must be positive", store.ErrValidation)
		}
		p.StockKg += qtyKg
		qty = qtyKg
	} else {
		if qtyUnits <= 0 {
			return domain.Product{}, fmt.Errorf("%w: quantidade_unidade must be positive", store.ErrValidation)
		}
		p.StockUnits += qtyUnits
		qty = float64(qtyUnits)
	}
	s.products[productID] = p

	if reason == "" {
		reason = "Entrada de estoque"
	}
	s.movements = append(s.movements, domain.StockMovement{
		ID:        xid.New("sm"),
		ProductID: productID,
		Type:      domain.MovementIn,
		Quantity:  qty,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
	return p, nil
}

func (s *Store) ListStockMovements(_ context.Context, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, len(s.movements))
	copy(out, s.movements)
	slices.SortFunc(out, func(a, b domain.StockMovement) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) OutboundKgSince(_ context.Context, since time.Time) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]float64)
	for _, m := range s.movements {
		if m.Type != domain.MovementOut || m.CreatedAt.Before(since) {
			continue
		}
		p, ok := s.products[m.ProductID]
		if !ok || !p.WeightBased() {
			continue
		}
		totals[m.ProductID] += -m.Quantity
	}
	return totals, nil
}

func (s *Store) OpenCashSession(_ context.Context, initialCents int64) (domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openSessionID != "" {
		return domain.CashSession{}, fmt.Errorf("%w: cash session %s is already open", store.ErrConflict, s.openSessionID)
	}

	now := time.Now().UTC()
	session := domain.CashSession{
		ID:           xid.New("cs"),
		Status:       domain.SessionOpen,
		InitialCents: initialCents,
		OpenedAt:     now,
	}
	s.sessionsByID[session.ID] = session
	s.openSessionID = session.ID
	s.cashMovements = append(s.cashMovements, domain.CashMovement{
		ID:          xid.New("cm"),
		SessionID:   session.ID,
		Type:        domain.CashOpening,
		AmountCents: initialCents,
		Description: "Abertura de caixa",
		CreatedAt:   now,
	})
	return session, nil
}

func (s *Store) CurrentCashSession(_ context.Context) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openSessionID == "" {
		return nil, nil
	}
	session := s.sessionsByID[s.openSessionID]
	return &session, nil
}

func (s *Store) AppendCashMovement(_ context.Context, sessionID, movType string, amountCents int64, description string) (domain.CashMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionsByID[sessionID]
	if !ok {
		return domain.CashMovement{}, fmt.Errorf("%w: cash session %s", store.ErrNotFound, sessionID)
	}
	if session.Status != domain.SessionOpen {
		return domain.CashMovement{}, fmt.Errorf("%w: cash session %s is closed", store.ErrConflict, sessionID)
	}

	m := domain.CashMovement{
		ID:          xid.New("cm"),
		SessionID:   sessionID,
		Type:        movType,
		AmountCents: amountCents,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.cashMovements = append(s.cashMovements, m)
	return m, nil
}

func (s *Store) CloseCashSession(_ context.Context, sessionID string, finalCents int64, observation string) (domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionsByID[sessionID]
	if !ok {
		return domain.CashSession{}, fmt.Errorf("%w: cash session %s", store.ErrNotFound, sessionID)
	}
	if session.Status != domain.SessionOpen {
		return domain.CashSession{}, fmt.Errorf("%w: cash session %s is not open", store.ErrConflict, sessionID)
	}

	now := time.Now().UTC()
	session.Status = domain.SessionClosed
	session.FinalCents = &finalCents
	session.Observation = observation
	session.ClosedAt = &now
	s.sessionsByID[sessionID] = session
	if s.openSessionID == sessionID {
		s.openSessionID = ""
	}
	s.cashMovements = append(s.cashMovements, domain.CashMovement{
		ID:          xid.New("cm"),
		SessionID:   sessionID,
		Type:        domain.CashClosing,
		AmountCents: finalCents,
		Description: "Fechamento de caixa",
		CreatedAt:   now,
	})
	return session, nil
}

func (s *Store) ListCashMovements(_ context.Context, sessionID string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CashMovement, 0, 16)
	for _, m := range s.cashMovements {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ListClosedCashSessions(_ context.Context, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CashSession, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		if session.Status == domain.SessionClosed {
			out = append(out, session)
		}
	}
	slices.SortFunc(out, func(a, b domain.CashSession) int {
		return b.OpenedAt.Compare(a.OpenedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SalesByPaymentSince(_ context.Context, since time.Time) ([]domain.PaymentTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMethod := make(map[string]*domain.PaymentTotal)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(since) {
			continue
		}
		pt, ok := byMethod[sale.PaymentMethod]
		if !ok {
			pt = &domain.PaymentTotal{Method: sale.PaymentMethod}
			byMethod[sale.PaymentMethod] = pt
		}
		pt.Count++
		pt.TotalCents += sale.TotalCents
	}

	out := make([]domain.PaymentTotal, 0, len(byMethod))
	for _, pt := range byMethod {
		out = append(out, *pt)
	}
	slices.SortFunc(out, func(a, b domain.PaymentTotal) int {
		return strings.Compare(a.Method, b.Method)
	})
	return out, nil
}

func (s *Store) ListExpensesDueBetween(_ context.Context, from, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, 16)
	for _, e := range s.expensesByID {
		if e.Recurrence != domain.RecurrenceNone {
			continue
		}
		if e.DueDate.Before(from) || !e.DueDate.Before(to) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return a.DueDate.Compare(b.DueDate)
	})
	return out, nil
}

func (s *Store) ListRecurringExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, 8)
	for _, e := range s.expensesByID {
		if e.Recurrence == domain.RecurrenceNone {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expensesByID[id]
	if !ok {
		return domain.Expense{}, fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
	}
	return e, nil
}

func (s *Store) CreateExpense(_ context.Context, e domain.Expense) (domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = xid.New("exp")
	}
	if _, ok := s.expensesByID[e.ID]; ok {
		return domain.Expense{}, fmt.Errorf("%w: expense %s already exists", store.ErrConflict, e.ID)
	}
	s.expensesByID[e.ID] = e
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e domain.Expense) (domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expensesByID[e.ID]; !ok {
		return domain.Expense{}, fmt.Errorf("%w: expense %s", store.ErrNotFound, e.ID)
	}
	s.expensesByID[e.ID] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expensesByID[id]; !ok {
		return fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
	}
	delete(s.expensesByID, id)
	return nil
}

func (s *Store) SetExpensePaid(_ context.Context, id string, paid bool, paidAt *time.Time) (domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expensesByID[id]
	if !ok {
		return domain.Expense{}, fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
	}
	e.Paid = paid
	e.PaidAt = paidAt
	s.expensesByID[id] = e
	return e, nil
}

func (s *Store) FindExpenseInstance(_ context.Context, originID string, month time.Time) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.instanceByKey[originID+"|"+monthKey(month)]
	if !ok {
		return nil, nil
	}
	e := s.expensesByID[id]
	return &e, nil
}

func (s *Store) MaterializeExpenseInstance(_ context.Context, e domain.Expense) (domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.OriginID + "|" + monthKey(e.DueDate)
	if existingID, ok := s.instanceByKey[key]; ok {
		return s.expensesByID[existingID], nil
	}
	if e.ID == "" {
		e.ID = xid.New("exp")
	}
	s.expensesByID[e.ID] = e
	s.instanceByKey[key] = e.ID
	return e, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Client, 0, len(s.clientsByID))
	for _, c := range s.clientsByID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Client) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) CreateClient(_ context.Context, c domain.Client) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = xid.New("cli")
	}
	c.CreatedAt = time.Now().UTC()
	s.clientsByID[c.ID] = c
	return c, nil
}

func (s *Store) UpdateClient(_ context.Context, c domain.Client) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clientsByID[c.ID]
	if !ok {
		return domain.Client{}, fmt.Errorf("%w: client %s", store.ErrNotFound, c.ID)
	}
	c.CreatedAt = existing.CreatedAt
	s.clientsByID[c.ID] = c
	return c, nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clientsByID[id]; !ok {
		return fmt.Errorf("%w: client %s", store.ErrNotFound, id)
	}
	delete(s.clientsByID, id)
	return nil
}

func (s *Store) ListSettings(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, u domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[u.Username]; ok {
		return fmt.Errorf("%w: user %s already exists", store.ErrConflict, u.Username)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[u.Username] = u
	return nil
}
