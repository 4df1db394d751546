package tenant

import (
	"fmt"

	"github.com/frahmantamala/crypto-gateway/internal"
)

// Category identifies one isolated credential and storage namespace. The
// set is closed: a category not listed here is rejected at startup, not
// deferred to a runtime map miss.
type Category string

const (
	CategoryPackages Category = "packages"
	CategoryMatrix   Category = "matrix"
	CategoryLottery  Category = "lottery"
)

// Categories returns the closed enumeration in its fixed probe order.
// Category resolution walks collections in exactly this order.
func Categories() []Category {
	return []Category{CategoryPackages, CategoryMatrix, CategoryLottery}
}

func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryPackages, CategoryMatrix, CategoryLottery:
		return Category(s), nil
	}
	return "", internal.NewValidationError(
		fmt.Sprintf("Invalid category %q. Must be one of: packages, matrix, lottery", s),
		internal.ErrCodeInvalidCategory,
	)
}

// Config is one tenant's immutable credential set.
type Config struct {
	Category             Category
	APIKey               string
	IPNSecret            string
	Sandbox              bool
	PaymentCollection    string
	WithdrawalCollection string
}

// Registry is the static category -> credential mapping, built once at
// startup and passed by reference; there is no module-level instance.
type Registry struct {
	configs map[Category]Config
	order   []Category
}

func NewRegistry(tenants []internal.TenantConfig) (*Registry, error) {
	configs := make(map[Category]Config, len(tenants))

	for _, t := range tenants {
		category, err := ParseCategory(t.Category)
		if err != nil {
			return nil, err
		}
		if _, exists := configs[category]; exists {
			return nil, internal.NewValidationError(
				fmt.Sprintf("duplicate tenant category %q", t.Category),
				internal.ErrCodeInvalidCategory,
			)
		}
		configs[category] = Config{
			Category:             category,
			APIKey:               t.APIKey,
			IPNSecret:            t.IPNSecret,
			Sandbox:              t.Sandbox,
			PaymentCollection:    t.PaymentCollection,
			WithdrawalCollection: t.WithdrawalCollection,
		}
	}

	// keep the fixed enumeration order, restricted to configured tenants
	var order []Category
	for _, c := range Categories() {
		if _, ok := configs[c]; ok {
			order = append(order, c)
		}
	}

	return &Registry{configs: configs, order: order}, nil
}

// Resolve returns the credential set for a category.
func (r *Registry) Resolve(category Category) (Config, error) {
	cfg, ok := r.configs[category]
	if !ok {
		return Config{}, internal.NewValidationError(
			fmt.Sprintf("unknown category %q", category),
			internal.ErrCodeInvalidCategory,
		)
	}
	return cfg, nil
}

func (r *Registry) IsSandbox(category Category) bool {
	return r.configs[category].Sandbox
}

// All returns the configured tenants in probe order.
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.configs[c])
	}
	return out
}
