package pricing

import (
	"errors"
	"fmt"
	"math"

	"lojapet/backend/internal/domain"
)

var ErrMissingPrice = errors.New("missing price")

// Quote is the authoritative pricing of a single sale line. Client-supplied
// prices are advisory only; callers compare them against the quote and
// always persist the quoted values.
type Quote struct {
	UnitPriceCents int64
	SubtotalCents  int64
	CostCents      int64
	Bags           int

	// Physical stock consumed by the line. Exactly one of the two is
	// non-zero, selected by the product category.
	DeductKg    float64
	DeductUnits int
}

// Resolve prices one sale line. Pure: never mutates state, errors only on
// absent or invalid pricing fields of the product.
func Resolve(product domain.Product, saleMode string, quantity float64) (Quote, error) {
	switch saleMode {
	case domain.SaleModePerUnit:
		if product.UnitPriceCents < 1 {
			return Quote{}, fmt.Errorf("%w: preco_unitario of product %s", ErrMissingPrice, product.ID)
		}
		units := int(math.Round(quantity))
		return Quote{
			UnitPriceCents: product.UnitPriceCents,
			SubtotalCents:  int64(math.Round(quantity * float64(product.UnitPriceCents))),
			CostCents:      int64(math.Round(quantity * float64(product.UnitCostCents))),
			DeductUnits:    units,
		}, nil

	case domain.SaleModePerBag:
		if product.BagWeightKg <= 0 {
			return Quote{}, fmt.Errorf("%w: peso_saco_kg of product %s", ErrMissingPrice, product.ID)
		}
		if product.BagPriceCents < 1 {
			return Quote{}, fmt.Errorf("%w: preco_saco of product %s", ErrMissingPrice, product.ID)
		}
		// Fractional remainders are discarded: 1.4 bags sells as 1 bag.
		bags := int(math.Round(quantity / product.BagWeightKg))
		deductKg := float64(bags) * product.BagWeightKg
		return Quote{
			UnitPriceCents: product.BagPriceCents,
			SubtotalCents:  int64(bags) * product.BagPriceCents,
			CostCents:      weightCostCents(product, deductKg),
			Bags:           bags,
			DeductKg:       deductKg,
		}, nil

	default: // per-kg is the default sale mode
		if product.PricePerKgCents < 1 {
			return Quote{}, fmt.Errorf("%w: preco_por_kg of product %s", ErrMissingPrice, product.ID)
		}
		return Quote{
			UnitPriceCents: product.PricePerKgCents,
			SubtotalCents:  int64(math.Round(quantity * float64(product.PricePerKgCents))),
			CostCents:      weightCostCents(product, quantity),
			DeductKg:       quantity,
		}, nil
	}
}

// weightCostCents estimates the cost basis of kg of a weight-based product
// for profit reporting. Prefers the bag cost spread over the bag weight,
// falling back to the flat per-kg cost.
func weightCostCents(product domain.Product, kg float64) int64 {
	if product.BagCostCents > 0 && product.BagWeightKg > 0 {
		return int64(math.Round(float64(product.BagCostCents) / product.BagWeightKg * kg))
	}
	return int64(math.Round(kg * float64(product.CostPerKgCents)))
}
