package services

import (
	"github.com/shopspring/decimal"

	"x402router/internal/models"
)

// PricingCatalog is a static lookup from resource type to price descriptor.
// Entries are injected at construction and never change; ListAll preserves
// insertion order so the public pricing document renders stably.
type PricingCatalog struct {
	entries map[string]models.PriceDescriptor
	order   []string
}

// NewPricingCatalog builds a catalog from the given descriptors
func NewPricingCatalog(descriptors ...models.PriceDescriptor) *PricingCatalog {
	c := &PricingCatalog{entries: make(map[string]models.PriceDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if _, exists := c.entries[d.ResourceType]; !exists {
			c.order = append(c.order, d.ResourceType)
		}
		c.entries[d.ResourceType] = d
	}
	return c
}

// Lookup returns the descriptor for an exact resource type match
func (c *PricingCatalog) Lookup(resourceType string) (models.PriceDescriptor, bool) {
	d, ok := c.entries[resourceType]
	return d, ok
}

// ListAll returns every descriptor in insertion order
func (c *PricingCatalog) ListAll() []models.PriceDescriptor {
	out := make([]models.PriceDescriptor, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.entries[t])
	}
	return out
}

// DefaultCatalog returns the built-in pricing for the gated resources
func DefaultCatalog() *PricingCatalog {
	return NewPricingCatalog(
		models.PriceDescriptor{
			ResourceType: "report",
			Amount:       decimal.NewFromFloat(5.00),
			Currency:     "usd",
			Description:  "Generated analytics report",
		},
		models.PriceDescriptor{
			ResourceType: "dataset",
			Amount:       decimal.NewFromFloat(12.50),
			Currency:     "usd",
			Description:  "Full sports dataset export",
		},
		models.PriceDescriptor{
			ResourceType: "video-search",
			Amount:       decimal.NewFromFloat(0.25),
			Currency:     "usd",
			Description:  "Single video search query",
		},
		models.PriceDescriptor{
			ResourceType: "workflow-run",
			Amount:       decimal.NewFromFloat(1.00),
			Currency:     "usd",
			Description:  "One workflow execution",
		},
	)
}
