package domain

import "time"

// Product categories. "racao" products are stocked by weight in kilograms
// and priced per kg or per sealed bag; everything else is stocked and
// priced as discrete units.
const (
	CategoryWeightBased = "racao"
	CategoryUnitBased   = "outros"
)

const (
	SaleModePerKg   = "kg"
	SaleModePerBag  = "saco"
	SaleModePerUnit = "unidade"
)

const (
	PaymentCash = "dinheiro"
	PaymentPix  = "pix"
	PaymentCard = "cartao"
)

const (
	MovementIn  = "entrada"
	MovementOut = "saida"
)

const (
	SessionOpen   = "aberto"
	SessionClosed = "fechado"
)

const (
	CashOpening    = "abertura"
	CashSupply     = "suprimento"
	CashWithdrawal = "sangria"
	CashClosing    = "fechamento"
)

const (
	RecurrenceNone    = "nenhum"
	RecurrenceMonthly = "mensal"
	RecurrencePeriod  = "periodo"
)

type Product struct {
	ID       string `json:"id"`
	Name     string `json:"nome"`
	Brand    string `json:"marca"`
	Category string `json:"categoria"`

	// Weight-based fields (categoria = racao).
	BagWeightKg     float64 `json:"peso_saco_kg,omitempty"`
	BagCostCents    int64   `json:"custo_saco_cents,omitempty"`
	BagPriceCents   int64   `json:"preco_saco_cents,omitempty"`
	PricePerKgCents int64   `json:"preco_por_kg_cents,omitempty"`
	CostPerKgCents  int64   `json:"custo_por_kg_cents,omitempty"`
	StockKg         float64 `json:"estoque_kg"`
	MinStockDays    int     `json:"estoque_minimo_dias,omitempty"`

	// Unit-based fields (categoria = outros).
	UnitPriceCents int64 `json:"preco_unitario_cents,omitempty"`
	UnitCostCents  int64 `json:"custo_unitario_cents,omitempty"`
	StockUnits     int   `json:"estoque_unidades"`
	MinStockUnits  int   `json:"estoque_minimo_unidades,omitempty"`

	Active    bool      `json:"ativo"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Product) WeightBased() bool {
	return p.Category == CategoryWeightBased
}

type ProductCreateRequest struct {
	Name            string  `json:"nome" validate:"required"`
	Brand           string  `json:"marca"`
	Category        string  `json:"categoria" validate:"required,oneof=racao outros"`
	BagWeightKg     float64 `json:"peso_saco_kg" validate:"gte=0"`
	BagCostCents    int64   `json:"custo_saco" validate:"gte=0"`
	BagPriceCents   int64   `json:"preco_saco" validate:"gte=0"`
	PricePerKgCents int64   `json:"preco_por_kg" validate:"gte=0"`
	CostPerKgCents  int64   `json:"custo_por_kg" validate:"gte=0"`
	StockKg         float64 `json:"estoque_kg" validate:"gte=0"`
	MinStockDays    int     `json:"estoque_minimo_dias" validate:"gte=0"`
	UnitPriceCents  int64   `json:"preco_unitario" validate:"gte=0"`
	UnitCostCents   int64   `json:"custo_unitario" validate:"gte=0"`
	StockUnits      int     `json:"estoque_unidades" validate:"gte=0"`
	MinStockUnits   int     `json:"estoque_minimo_unidades" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name            *string  `json:"nome,omitempty"`
	Brand           *string  `json:"marca,omitempty"`
	BagWeightKg     *float64 `json:"peso_saco_kg,omitempty"`
	BagCostCents    *int64   `json:"custo_saco,omitempty"`
	BagPriceCents   *int64   `json:"preco_saco,omitempty"`
	PricePerKgCents *int64   `json:"preco_por_kg,omitempty"`
	CostPerKgCents  *int64   `json:"custo_por_kg,omitempty"`
	MinStockDays    *int     `json:"estoque_minimo_dias,omitempty"`
	UnitPriceCents  *int64   `json:"preco_unitario,omitempty"`
	UnitCostCents   *int64   `json:"custo_unitario,omitempty"`
	MinStockUnits   *int     `json:"estoque_minimo_unidades,omitempty"`
	Active          *bool    `json:"ativo,omitempty"`
}

type StockEntryRequest struct {
	QuantityKg    float64 `json:"quantidade_kg" validate:"gte=0"`
	QuantityUnits int     `json:"quantidade_unidade" validate:"gte=0"`
	Reason        string  `json:"motivo"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Type      string    `json:"tipo"`
	Quantity  float64   `json:"quantidade"`
	Reason    string    `json:"motivo"`
	SaleID    string    `json:"sale_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type StockAlert struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"nome"`
	Category   string  `json:"categoria"`
	StockKg    float64 `json:"estoque_kg,omitempty"`
	StockUnits int     `json:"estoque_unidades,omitempty"`
	DailyRate  float64 `json:"consumo_diario_kg,omitempty"`
	DaysLeft   float64 `json:"dias_restantes,omitempty"`
	Reason     string  `json:"motivo"`
}

type StockAlertResponse struct {
	GeneratedAt string       `json:"generated_at"`
	Alerts      []StockAlert `json:"alerts"`
}

type SaleItem struct {
	SaleID         string  `json:"sale_id,omitempty"`
	ProductID      string  `json:"product_id"`
	SaleMode       string  `json:"tipo_venda"`
	Quantity       float64 `json:"quantidade_kg"`
	UnitPriceCents int64   `json:"preco_unitario_cents"`
	SubtotalCents  int64   `json:"subtotal_cents"`
	CostCents      int64   `json:"custo_cents,omitempty"`
}

type Sale struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"client_id,omitempty"`
	PaymentMethod string     `json:"forma_pagamento"`
	DiscountCents int64      `json:"desconto_cents"`
	TotalCents    int64      `json:"total_cents"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleItem `json:"items"`
}

type SaleLineRequest struct {
	ProductID      string  `json:"product_id" validate:"required"`
	SaleMode       string  `json:"tipo_venda"`
	Quantity       float64 `json:"quantidade_kg" validate:"gt=0"`
	UnitPriceCents *int64  `json:"preco_unitario,omitempty"`
	SubtotalCents  *int64  `json:"subtotal,omitempty"`
}

type SaleCreateRequest struct {
	Items         []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string            `json:"forma_pagamento" validate:"required"`
	DiscountCents int64             `json:"desconto" validate:"gte=0"`
	ClientID      string            `json:"client_id,omitempty"`
}

type CashSession struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	InitialCents int64      `json:"saldo_inicial_cents"`
	FinalCents   *int64     `json:"saldo_final_cents,omitempty"`
	Observation  string     `json:"observacao,omitempty"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

type CashMovement struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Type        string    `json:"tipo"`
	AmountCents int64     `json:"valor_cents"`
	Description string    `json:"descricao"`
	CreatedAt   time.Time `json:"created_at"`
}

type CashOpenRequest struct {
	InitialCents int64 `json:"saldo_inicial" validate:"gte=0"`
}

type CashCloseRequest struct {
	Observation string `json:"observacao"`
	FinalCents  *int64 `json:"saldo_final,omitempty"`
}

type CashAmountRequest struct {
	AmountCents int64  `json:"valor" validate:"gt=0"`
	Description string `json:"descricao"`
}

type PaymentTotal struct {
	Method     string `json:"forma"`
	Count      int    `json:"vendas"`
	TotalCents int64  `json:"total_cents"`
}

// Reconciliation is a read-only projection over an open (or just closed)
// session. Recomputed on every query, never persisted.
type Reconciliation struct {
	Session          CashSession    `json:"session"`
	SalesCount       int            `json:"qtd_vendas"`
	SalesCents       int64          `json:"total_vendas_cents"`
	ByPayment        []PaymentTotal `json:"por_pagamento"`
	SuppliesCents    int64          `json:"suprimentos_cents"`
	WithdrawalsCents int64          `json:"sangrias_cents"`
	EstimatedCents   int64          `json:"saldo_estimado_cents"`
	Movements        []CashMovement `json:"movements"`
}

type Expense struct {
	ID          string     `json:"id"`
	Description string     `json:"descricao"`
	Category    string     `json:"categoria"`
	AmountCents int64      `json:"valor_cents"`
	Paid        bool       `json:"pago"`
	DueDate     time.Time  `json:"data_vencimento"`
	PaidAt      *time.Time `json:"data_pagamento,omitempty"`
	Recurrence  string     `json:"tipo_recorrencia"`
	PeriodStart *time.Time `json:"data_inicio,omitempty"`
	PeriodEnd   *time.Time `json:"data_fim,omitempty"`
	// OriginID links a materialized monthly instance back to the
	// recurring definition it was copied from.
	OriginID string `json:"origin_id,omitempty"`
	// Virtual marks an unpersisted projection of a recurring definition
	// for a month that has no materialized instance yet.
	Virtual bool `json:"virtual,omitempty"`
}

type ExpenseCreateRequest struct {
	Description string `json:"descricao" validate:"required"`
	Category    string `json:"categoria"`
	AmountCents int64  `json:"valor" validate:"gt=0"`
	Paid        bool   `json:"pago"`
	DueDate     string `json:"data_vencimento"`
	Recurrence  string `json:"tipo_recorrencia" validate:"omitempty,oneof=nenhum mensal periodo"`
	PeriodStart string `json:"data_inicio"`
	PeriodEnd   string `json:"data_fim"`
}

type CategoryTotal struct {
	Category   string `json:"categoria"`
	TotalCents int64  `json:"total_cents"`
}

type ExpenseSummary struct {
	Month        string          `json:"mes"`
	TotalCents   int64           `json:"total_cents"`
	PaidCents    int64           `json:"pago_cents"`
	PendingCents int64           `json:"pendente_cents"`
	ByCategory   []CategoryTotal `json:"por_categoria"`
}

type Client struct {
	ID          string    `json:"id"`
	Name        string    `json:"nome"`
	Phone       string    `json:"telefone"`
	Observation string    `json:"observacao,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ClientCreateRequest struct {
	Name        string `json:"nome" validate:"required"`
	Phone       string `json:"telefone"`
	Observation string `json:"observacao"`
}

type LoginRequest struct {
	Username string `json:"login" validate:"required"`
	Password string `json:"senha" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
