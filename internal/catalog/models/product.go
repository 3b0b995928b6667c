package models

import (
	"fmt"
	"strings"
	"time"
)

// ProductIdentifier addresses one catalog item at the storefront. Identifiers
// are sparse: most of a numeric range does not resolve to a product.
type ProductIdentifier string

// Product is the canonical, storage-ready record built from one API response.
type Product struct {
	ProductID       string
	EAN             string
	Name            string
	Brand           string
	Category        string
	Subcategory     string
	Price           float64
	UnitPrice       float64
	UnitMeasure     string
	Description     string
	Ingredients     string
	Allergens       string
	NutritionalInfo string
	ImageURL        string
	ThumbnailURL    string
	IsAvailable     bool
	URL             string

	// Set by the store, never by the normalizer.
	ScrapeDate  time.Time
	LastUpdated *time.Time
}

// Valid reports whether the record may be persisted. An empty name means the
// payload was not understood, not that the product has no name.
func (p *Product) Valid() bool {
	return p != nil && strings.TrimSpace(p.ProductID) != "" && strings.TrimSpace(p.Name) != ""
}

// ProductURL is the storefront page of a product.
func ProductURL(baseURL string, id ProductIdentifier) string {
	return fmt.Sprintf("%s/product/%s", strings.TrimRight(baseURL, "/"), id)
}

// RawResponse is the unparsed body of a successful product API call.
type RawResponse struct {
	ID         ProductIdentifier
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}
