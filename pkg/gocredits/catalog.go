package gocredits

import (
	"fmt"
	"strings"
)

const (
	// DefaultCatalogVersion identifies the built-in tier table.
	DefaultCatalogVersion = "2024-subscriptions-v1"

	// DefaultCurrency is used for tiers that do not name a currency.
	DefaultCurrency = "usd"
)

// Catalog is the read-only table of purchasable tiers. It is the single source
// of truth for price and credit amount and needs no locking.
type Catalog struct {
	version string
	tiers   []PricingTier
	byID    map[string]int
}

// NewCatalog validates the tiers and builds an immutable catalog.
// Tier order is preserved.
func NewCatalog(version string, tiers ...PricingTier) (*Catalog, error) {
	if strings.TrimSpace(version) == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidCatalog)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: at least one tier is required", ErrInvalidCatalog)
	}

	c := &Catalog{
		version: version,
		tiers:   make([]PricingTier, 0, len(tiers)),
		byID:    make(map[string]int, len(tiers)),
	}

	for _, tier := range tiers {
		if tier.ID == "" {
			return nil, fmt.Errorf("%w: tier id is required", ErrInvalidCatalog)
		}
		if _, exists := c.byID[tier.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate tier id %q", ErrInvalidCatalog, tier.ID)
		}
		if tier.PriceMinorUnits <= 0 {
			return nil, fmt.Errorf("%w: tier %q must have a positive price", ErrInvalidCatalog, tier.ID)
		}
		if tier.CreditsGranted <= 0 {
			return nil, fmt.Errorf("%w: tier %q must grant credits", ErrInvalidCatalog, tier.ID)
		}
		tier.Currency = strings.ToLower(strings.TrimSpace(tier.Currency))
		if tier.Currency == "" {
			tier.Currency = DefaultCurrency
		}
		if !isCurrencyCode(tier.Currency) {
			return nil, fmt.Errorf("%w: tier %q has invalid currency %q", ErrInvalidCatalog, tier.ID, tier.Currency)
		}
		switch tier.Interval {
		case "":
			tier.Interval = IntervalMonth
		case IntervalMonth, IntervalYear:
		default:
			return nil, fmt.Errorf("%w: tier %q has unsupported interval %q", ErrInvalidCatalog, tier.ID, tier.Interval)
		}

		c.byID[tier.ID] = len(c.tiers)
		c.tiers = append(c.tiers, tier)
	}

	return c, nil
}

// DefaultCatalog returns the built-in subscription tiers.
// 1,000,000 credits correspond to $1.00 of model usage.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultCatalogVersion,
		PricingTier{
			ID:              "explorer",
			Name:            "Explorer",
			Description:     "5M credits per month (about 5,000 conversations)",
			PriceMinorUnits: 499,
			CreditsGranted:  5_000_000,
		},
		PricingTier{
			ID:              "artisan",
			Name:            "Artisan",
			Description:     "16M credits per month (about 16,000 conversations)",
			PriceMinorUnits: 1499,
			CreditsGranted:  16_000_000,
		},
		PricingTier{
			ID:              "maestro",
			Name:            "Maestro",
			Description:     "50M credits per month (about 50,000 conversations)",
			PriceMinorUnits: 4499,
			CreditsGranted:  50_000_000,
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Version returns the catalog version recorded on every grant.
func (c *Catalog) Version() string {
	return c.version
}

// Tiers returns the tiers in catalog order.
func (c *Catalog) Tiers() []PricingTier {
	out := make([]PricingTier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// TierByID looks up a tier.
func (c *Catalog) TierByID(id string) (PricingTier, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return PricingTier{}, false
	}
	return c.tiers[idx], true
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
