package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lojapet/backend/internal/domain"
	"lojapet/backend/internal/pricing"
	"lojapet/backend/internal/store"
	"lojapet/backend/internal/xid"
)

type Store struct {
	db          *sql.DB
	strictStock bool
}

func New(ctx context.Context, databaseURL string, strictStock bool) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, strictStock: strictStock}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `
	id, nome, marca, categoria,
	peso_saco_kg, custo_saco_cents, preco_saco_cents, preco_por_kg_cents, custo_por_kg_cents,
	estoque_kg, estoque_minimo_dias,
	preco_unitario_cents, custo_unitario_cents, estoque_unidades, estoque_minimo_unidades,
	ativo, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (domain.Product, error) {
	var p domain.Product
	err := r.Scan(
		&p.ID, &p.Name, &p.Brand, &p.Category,
		&p.BagWeightKg, &p.BagCostCents, &p.BagPriceCents, &p.PricePerKgCents, &p.CostPerKgCents,
		&p.StockKg, &p.MinStockDays,
		&p.UnitPriceCents, &p.UnitCostCents, &p.StockUnits, &p.MinStockUnits,
		&p.Active, &p.CreatedAt,
	)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ativo = true
		  AND ($1 = '' OR nome ILIKE '%' || $1 || '%' OR marca ILIKE '%' || $1 || '%')
		ORDER BY nome
	`, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = xid.New("prod")
	}
	p.Active = true
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, nome, marca, categoria,
			peso_saco_kg, custo_saco_cents, preco_saco_cents, preco_por_kg_cents, custo_por_kg_cents,
			estoque_kg, estoque_minimo_dias,
			preco_unitario_cents, custo_unitario_cents, estoque_unidades, estoque_minimo_unidades,
			ativo, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, p.ID, p.Name, p.Brand, p.Category,
		p.BagWeightKg, p.BagCostCents, p.BagPriceCents, p.PricePerKgCents, p.CostPerKgCents,
		p.StockKg, p.MinStockDays,
		p.UnitPriceCents, p.UnitCostCents, p.StockUnits, p.MinStockUnits,
		p.Active, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, fmt.Errorf("%w: product %s already exists", store.ErrConflict, p.ID)
		}
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			nome = $2, marca = $3,
			peso_saco_kg = $4, custo_saco_cents = $5, preco_saco_cents = $6,
			preco_por_kg_cents = $7, custo_por_kg_cents = $8,
			estoque_minimo_dias = $9,
			preco_unitario_cents = $10, custo_unitario_cents = $11, estoque_minimo_unidades = $12,
			ativo = $13
		WHERE id = $1
	`, p.ID, p.Name, p.Brand,
		p.BagWeightKg, p.BagCostCents, p.BagPriceCents,
		p.PricePerKgCents, p.CostPerKgCents,
		p.MinStockDays,
		p.UnitPriceCents, p.UnitCostCents, p.MinStockUnits,
		p.Active)
	if err != nil {
		return domain.Product{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, err
	}
	if affected == 0 {
		return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, p.ID)
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) DeactivateProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET ativo = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return nil
}

// CreateSale runs the whole cart as one serializable transaction: product
// rows are locked, prices resolved from the locked rows, then sale header,
// items, stock decrements and saida movements are written together.
func (s *Store) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: empty cart", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Sale{}, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for _, lr := range req.Items {
		if !seen[lr.ProductID] {
			seen[lr.ProductID] = true
			ids = append(ids, lr.ProductID)
		}
	}

	productRows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ativo = true AND id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return domain.Sale{}, err
	}
	productMap := make(map[string]domain.Product, len(ids))
	for productRows.Next() {
		p, err := scanProduct(productRows)
		if err != nil {
			_ = productRows.Close()
			return domain.Sale{}, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return domain.Sale{}, err
	}
	_ = productRows.Close()

	now := time.Now().UTC()
	saleID := xid.New("sale")
	var total int64
	items := make([]domain.SaleItem, 0, len(req.Items))
	quotes := make([]pricing.Quote, 0, len(req.Items))
	// Strict checks count the cart cumulatively so the same product on
	// two lines cannot pass both against the stock read at lock time.
	needKg := make(map[string]float64, len(req.Items))
	needUnits := make(map[string]int, len(req.Items))
	for _, lr := range req.Items {
		p, ok := productMap[lr.ProductID]
		if !ok {
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
		items = append(items, domain.SaleItem{
			SaleID:         saleID,
			ProductID:      lr.ProductID,
			SaleMode:       lr.SaleMode,
			Quantity:       lr.Quantity,
			UnitPriceCents: q.UnitPriceCents,
			SubtotalCents:  q.SubtotalCents,
			CostCents:      q.CostCents,
		})
		quotes = append(quotes, q)
	}

	if req.DiscountCents > total {
		return domain.Sale{}, fmt.Errorf("%w: desconto %d exceeds items total %d", store.ErrValidation, req.DiscountCents, total)
	}
	total -= req.DiscountCents

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, client_id, forma_pagamento, desconto_cents, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, saleID, nullIfEmpty(req.ClientID), req.PaymentMethod, req.DiscountCents, total, now)
	if err != nil {
		return domain.Sale{}, txErr(err)
	}

	for i, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, tipo_venda, quantidade, preco_unitario_cents, subtotal_cents, custo_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.SaleID, item.ProductID, item.SaleMode, item.Quantity, item.UnitPriceCents, item.SubtotalCents, item.CostCents)
		if err != nil {
			return domain.Sale{}, txErr(err)
		}

		p := productMap[item.ProductID]
		q := quotes[i]
		var moved float64
		if p.WeightBased() {
			moved = math.Min(p.StockKg, q.DeductKg)
			p.StockKg = math.Max(0, p.StockKg-q.DeductKg)
			_, err = tx.ExecContext(ctx, `
				UPDATE products SET estoque_kg = GREATEST(0, estoque_kg - $2) WHERE id = $1
			`, p.ID, q.DeductKg)
		} else {
			moved = float64(min(p.StockUnits, q.DeductUnits))
			p.StockUnits = max(0, p.StockUnits-q.DeductUnits)
			_, err = tx.ExecContext(ctx, `
				UPDATE products SET estoque_unidades = GREATEST(0, estoque_unidades - $2) WHERE id = $1
			`, p.ID, q.DeductUnits)
		}
		if err != nil {
			return domain.Sale{}, txErr(err)
		}
		productMap[item.ProductID] = p

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, tipo, quantidade, motivo, sale_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("sm"), item.ProductID, domain.MovementOut, -moved, fmt.Sprintf("Venda #%s", saleID), saleID, now)
		if err != nil {
			return domain.Sale{}, txErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Sale{}, txErr(err)
	}

	return domain.Sale{
		ID:            saleID,
		ClientID:      req.ClientID,
		PaymentMethod: req.PaymentMethod,
		DiscountCents: req.DiscountCents,
		TotalCents:    total,
		CreatedAt:     now,
		Items:         items,
	}, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.scanSaleHeader(s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(client_id, ''), forma_pagamento, desconto_cents, total_cents, created_at
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, fmt.Errorf("%w: sale %s", store.ErrNotFound, id)
		}
		return domain.Sale{}, err
	}

	itemsBySale, err := s.loadSaleItems(ctx, []string{id})
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Items = itemsBySale[id]
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(client_id, ''), forma_pagamento, desconto_cents, total_cents, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		sale, err := s.scanSaleHeader(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return sales, nil
	}
	itemsBySale, err := s.loadSaleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) scanSaleHeader(r rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := r.Scan(&sale.ID, &sale.ClientID, &sale.PaymentMethod, &sale.DiscountCents, &sale.TotalCents, &sale.CreatedAt)
	return sale, err
}

func (s *Store) loadSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, tipo_venda, quantidade, preco_unitario_cents, subtotal_cents, custo_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.SaleItem, len(saleIDs))
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.SaleID, &item.ProductID, &item.SaleMode, &item.Quantity, &item.UnitPriceCents, &item.SubtotalCents, &item.CostCents); err != nil {
			return nil, err
		}
		out[item.SaleID] = append(out[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AddStockEntry(ctx context.Context, productID string, qtyKg float64, qtyUnits int, reason string) (domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.Product{}, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		return domain.Product{}, err
	}

	var qty float64
	if p.WeightBased() {
		if qtyKg <= 0 {
			return domain.Product{}, fmt.Errorf("%w: quantidade_kg must be positive", store.ErrValidation)
		}
		qty = qtyKg
		p.StockKg += qtyKg
		_, err = tx.ExecContext(ctx, `UPDATE products SET estoque_kg = estoque_kg + $2 WHERE id = $1`, productID, qtyKg)
	} else {
		if qtyUnits <= 0 {
			return domain.Product{}, fmt.Errorf("%w: quantidade_unidade must be positive", store.ErrValidation)
		}
		qty = float64(qtyUnits)
		p.StockUnits += qtyUnits
		_, err = tx.ExecContext(ctx, `UPDATE products SET estoque_unidades = estoque_unidades + $2 WHERE id = $1`, productID, qtyUnits)
	}
	if err != nil {
		return domain.Product{}, err
	}

	if reason == "" {
		reason = "Entrada de estoque"
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, tipo, quantidade, motivo, sale_id, created_at)
		VALUES ($1,$2,$3,$4,$5,NULL,$6)
	`, xid.New("sm"), productID, domain.MovementIn, qty, reason, time.Now().UTC())
	if err != nil {
		return domain.Product{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) ListStockMovements(ctx context.Context, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, tipo, quantidade, motivo, COALESCE(sale_id, ''), created_at
		FROM stock_movements
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.Reason, &m.SaleID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) OutboundKgSince(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.product_id, COALESCE(SUM(-m.quantidade), 0)
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE m.tipo = $1 AND m.created_at >= $2 AND p.categoria = $3
		GROUP BY m.product_id
	`, domain.MovementOut, since, domain.CategoryWeightBased)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var id string
		var kg float64
		if err := rows.Scan(&id, &kg); err != nil {
			return nil, err
		}
		totals[id] = kg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

// OpenCashSession relies on the partial unique index over
// cash_sessions(status) WHERE status = 'aberto': a concurrent second open
// surfaces as a unique violation, never as two open rows.
func (s *Store) OpenCashSession(ctx context.Context, initialCents int64) (domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.CashSession{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	session := domain.CashSession{
		ID:           xid.New("cs"),
		Status:       domain.SessionOpen,
		InitialCents: initialCents,
		OpenedAt:     now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, status, saldo_inicial_cents, observacao, opened_at)
		VALUES ($1,$2,$3,'',$4)
	`, session.ID, session.Status, session.InitialCents, session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CashSession{}, fmt.Errorf("%w: a cash session is already open", store.ErrConflict)
		}
		return domain.CashSession{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, session_id, tipo, valor_cents, descricao, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("cm"), session.ID, domain.CashOpening, initialCents, "Abertura de caixa", now)
	if err != nil {
		return domain.CashSession{}, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return domain.CashSession{}, fmt.Errorf("%w: a cash session is already open", store.ErrConflict)
		}
		return domain.CashSession{}, err
	}
	return session, nil
}

func (s *Store) CurrentCashSession(ctx context.Context) (*domain.CashSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, status, saldo_inicial_cents, saldo_final_cents, observacao, opened_at, closed_at
		FROM cash_sessions
		WHERE status = $1
	`, domain.SessionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func scanSession(r rowScanner) (domain.CashSession, error) {
	var session domain.CashSession
	var finalCents sql.NullInt64
	var closedAt sql.NullTime
	err := r.Scan(&session.ID, &session.Status, &session.InitialCents, &finalCents, &session.Observation, &session.OpenedAt, &closedAt)
	if err != nil {
		return domain.CashSession{}, err
	}
	if finalCents.Valid {
		session.FinalCents = &finalCents.Int64
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		session.ClosedAt = &t
	}
	return session, nil
}

func (s *Store) AppendCashMovement(ctx context.Context, sessionID, movType string, amountCents int64, description string) (domain.CashMovement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.CashMovement{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM cash_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CashMovement{}, fmt.Errorf("%w: cash session %s", store.ErrNotFound, sessionID)
		}
		return domain.CashMovement{}, err
	}
	if status != domain.SessionOpen {
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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, session_id, tipo, valor_cents, descricao, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.SessionID, m.Type, m.AmountCents, m.Description, m.CreatedAt)
	if err != nil {
		return domain.CashMovement{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.CashMovement{}, err
	}
	return m, nil
}

// CloseCashSession is a conditional update: the WHERE status = 'aberto'
// clause makes double closes lose the race cleanly instead of overwriting
// the first close.
func (s *Store) CloseCashSession(ctx context.Context, sessionID string, finalCents int64, observation string) (domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.CashSession{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	session, err := scanSession(tx.QueryRowContext(ctx, `
		UPDATE cash_sessions
		SET status = $2, saldo_final_cents = $3, observacao = $4, closed_at = $5
		WHERE id = $1 AND status = $6
		RETURNING id, status, saldo_inicial_cents, saldo_final_cents, observacao, opened_at, closed_at
	`, sessionID, domain.SessionClosed, finalCents, observation, now, domain.SessionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM cash_sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
				return domain.CashSession{}, err
			}
			if !exists {
				return domain.CashSession{}, fmt.Errorf("%w: cash session %s", store.ErrNotFound, sessionID)
			}
			return domain.CashSession{}, fmt.Errorf("%w: cash session %s is not open", store.ErrConflict, sessionID)
		}
		return domain.CashSession{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, session_id, tipo, valor_cents, descricao, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("cm"), sessionID, domain.CashClosing, finalCents, "Fechamento de caixa", now)
	if err != nil {
		return domain.CashSession{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.CashSession{}, err
	}
	return session, nil
}

func (s *Store) ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tipo, valor_cents, descricao, created_at
		FROM cash_movements
		WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CashMovement, 0, 16)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Type, &m.AmountCents, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListClosedCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, saldo_inicial_cents, saldo_final_cents, observacao, opened_at, closed_at
		FROM cash_sessions
		WHERE status = $1
		ORDER BY opened_at DESC
		LIMIT $2
	`, domain.SessionClosed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CashSession, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SalesByPaymentSince(ctx context.Context, since time.Time) ([]domain.PaymentTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT forma_pagamento, COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE created_at >= $1
		GROUP BY forma_pagamento
		ORDER BY forma_pagamento
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PaymentTotal, 0, 3)
	for rows.Next() {
		var pt domain.PaymentTotal
		if err := rows.Scan(&pt.Method, &pt.Count, &pt.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const expenseColumns = `
	id, descricao, categoria, valor_cents, pago,
	data_vencimento, data_pagamento, recorrencia, data_inicio, data_fim, COALESCE(origin_id, '')`

func scanExpense(r rowScanner) (domain.Expense, error) {
	var e domain.Expense
	var paidAt sql.NullTime
	var periodStart, periodEnd sql.NullTime
	err := r.Scan(&e.ID, &e.Description, &e.Category, &e.AmountCents, &e.Paid,
		&e.DueDate, &paidAt, &e.Recurrence, &periodStart, &periodEnd, &e.OriginID)
	if err != nil {
		return domain.Expense{}, err
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		e.PaidAt = &t
	}
	if periodStart.Valid {
		t := periodStart.Time.UTC()
		e.PeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		e.PeriodEnd = &t
	}
	return e, nil
}

func (s *Store) ListExpensesDueBetween(ctx context.Context, from, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE recorrencia = $1 AND data_vencimento >= $2 AND data_vencimento < $3
		ORDER BY data_vencimento
	`, domain.RecurrenceNone, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func (s *Store) ListRecurringExpenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE recorrencia <> $1
		ORDER BY id
	`, domain.RecurrenceNone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func collectExpenses(rows *sql.Rows) ([]domain.Expense, error) {
	out := make([]domain.Expense, 0, 16)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Expense{}, fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
		}
		return domain.Expense{}, err
	}
	return e, nil
}

func (s *Store) CreateExpense(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	if e.ID == "" {
		e.ID = xid.New("exp")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, descricao, categoria, valor_cents, pago, data_vencimento, data_pagamento, recorrencia, data_inicio, data_fim, origin_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.Description, e.Category, e.AmountCents, e.Paid,
		e.DueDate, nullTime(e.PaidAt), e.Recurrence, nullTime(e.PeriodStart), nullTime(e.PeriodEnd), nullIfEmpty(e.OriginID))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Expense{}, fmt.Errorf("%w: expense %s already exists", store.ErrConflict, e.ID)
		}
		return domain.Expense{}, err
	}
	return e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET
			descricao = $2, categoria = $3, valor_cents = $4, pago = $5,
			data_vencimento = $6, data_pagamento = $7, recorrencia = $8, data_inicio = $9, data_fim = $10
		WHERE id = $1
	`, e.ID, e.Description, e.Category, e.AmountCents, e.Paid,
		e.DueDate, nullTime(e.PaidAt), e.Recurrence, nullTime(e.PeriodStart), nullTime(e.PeriodEnd))
	if err != nil {
		return domain.Expense{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Expense{}, err
	}
	if affected == 0 {
		return domain.Expense{}, fmt.Errorf("%w: expense %s", store.ErrNotFound, e.ID)
	}
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) SetExpensePaid(ctx context.Context, id string, paid bool, paidAt *time.Time) (domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx, `
		UPDATE expenses SET pago = $2, data_pagamento = $3
		WHERE id = $1
		RETURNING `+expenseColumns+`
	`, id, paid, nullTime(paidAt)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Expense{}, fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
		}
		return domain.Expense{}, err
	}
	return e, nil
}

func (s *Store) FindExpenseInstance(ctx context.Context, originID string, month time.Time) (*domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE origin_id = $1 AND date_trunc('month', data_vencimento) = date_trunc('month', $2::timestamptz)
	`, originID, month))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// MaterializeExpenseInstance inserts a per-month instance of a recurring
// definition. The unique index over (origin_id, month of data_vencimento)
// makes concurrent materializations converge on one row: the loser of the
// race reads back the winner.
func (s *Store) MaterializeExpenseInstance(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	if e.ID == "" {
		e.ID = xid.New("exp")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, descricao, categoria, valor_cents, pago, data_vencimento, data_pagamento, recorrencia, data_inicio, data_fim, origin_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,NULL,$9)
		ON CONFLICT DO NOTHING
	`, e.ID, e.Description, e.Category, e.AmountCents, e.Paid,
		e.DueDate, nullTime(e.PaidAt), domain.RecurrenceNone, e.OriginID)
	if err != nil {
		return domain.Expense{}, err
	}

	existing, err := s.FindExpenseInstance(ctx, e.OriginID, e.DueDate)
	if err != nil {
		return domain.Expense{}, err
	}
	if existing == nil {
		return domain.Expense{}, fmt.Errorf("%w: expense instance for %s vanished after insert", store.ErrConflict, e.OriginID)
	}
	return *existing, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nome, telefone, observacao, created_at
		FROM clients
		ORDER BY nome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Client, 0, 32)
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Observation, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	if c.ID == "" {
		c.ID = xid.New("cli")
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, nome, telefone, observacao, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, c.ID, c.Name, c.Phone, c.Observation, c.CreatedAt)
	if err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (s *Store) UpdateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET nome = $2, telefone = $3, observacao = $4 WHERE id = $1
	`, c.ID, c.Name, c.Phone, c.Observation)
	if err != nil {
		return domain.Client{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Client{}, err
	}
	if affected == 0 {
		return domain.Client{}, fmt.Errorf("%w: client %s", store.ErrNotFound, c.ID)
	}
	return c, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: client %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, 8)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

func (s *Store) GetUser(ctx context.Context, username string) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserAccount{}, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
		}
		return domain.UserAccount{}, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, u.Username, u.Password, u.Role, u.Active, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already exists", store.ErrConflict, u.Username)
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func txErr(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", store.ErrStockConflict, err)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
