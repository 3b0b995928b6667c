package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"catalog_ingest/internal/catalog/models"
	"catalog_ingest/pkg/text"
)

var (
	// ErrMalformedPayload means the body is not a JSON object. Retrying the
	// same response cannot help.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingName means the payload parsed but carries no display name, so
	// the record must not be stored.
	ErrMissingName = errors.New("missing product name")
)

// Column widths of the products table.
const (
	maxNameLen    = 255
	maxShortLen   = 100
	maxMeasureLen = 20
	maxEANLen     = 32
	maxURLLen     = 500
)

// Normalizer maps product API payloads of varying shape onto models.Product.
type Normalizer struct {
	baseURL string
	text    text.ITextService
}

func NewNormalizer(baseURL string) *Normalizer {
	return &Normalizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		text:    text.NewTextService(),
	}
}

func (n *Normalizer) Normalize(raw models.RawResponse) (*models.Product, error) {
	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw.Body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, raw.ID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s: body is null", ErrMalformedPayload, raw.ID)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: trailing data after object", ErrMalformedPayload, raw.ID)
	}

	prices := getMap(data, "price_instructions")
	nutrition := getMap(data, "nutrition_information")
	category, subcategory := extractCategories(getSlice(data, "categories"))

	unitPrice, ok := getFloat(prices, "reference_price")
	if !ok {
		unitPrice, _ = getFloat(prices, "bulk_price")
	}
	price, _ := getFloat(prices, "unit_price")

	thumbnail := getString(data, "thumbnail")

	p := &models.Product{
		ProductID:       string(raw.ID),
		EAN:             n.short(getString(data, "ean"), maxEANLen),
		Name:            n.short(getString(data, "display_name"), maxNameLen),
		Brand:           n.short(getString(data, "brand"), maxShortLen),
		Category:        n.short(category, maxShortLen),
		Subcategory:     n.short(subcategory, maxShortLen),
		Price:           price,
		UnitPrice:       unitPrice,
		UnitMeasure:     n.short(getString(prices, "reference_format"), maxMeasureLen),
		Description:     n.text.RemoveTags(getString(getMap(data, "details"), "description")),
		Ingredients:     n.text.RemoveTags(getString(nutrition, "ingredients")),
		Allergens:       n.text.RemoveTags(getString(nutrition, "allergens")),
		NutritionalInfo: remainingNutrition(nutrition),
		ImageURL:        n.short(thumbnail, maxURLLen),
		ThumbnailURL:    n.short(firstPhotoThumbnail(getSlice(data, "photos"), thumbnail), maxURLLen),
		IsAvailable:     getBool(data, "published", true),
		URL:             models.ProductURL(n.baseURL, raw.ID),
	}

	if !p.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrMissingName, raw.ID)
	}
	return p, nil
}

func (n *Normalizer) short(s string, max int) string {
	return n.text.ReduceToLength(n.text.Clean(s), max)
}

// extractCategories takes the name of the first category and the name of the
// first child of that category. Deeper levels are ignored.
func extractCategories(categories []any) (category, subcategory string) {
	if len(categories) == 0 {
		return "", ""
	}
	first, _ := categories[0].(map[string]any)
	category = getString(first, "name")
	if children := getSlice(first, "categories"); len(children) > 0 {
		child, _ := children[0].(map[string]any)
		subcategory = getString(child, "name")
	}
	return category, subcategory
}

func firstPhotoThumbnail(photos []any, fallback string) string {
	for _, p := range photos {
		photo, _ := p.(map[string]any)
		if thumb := getString(photo, "thumbnail"); thumb != "" {
			return thumb
		}
	}
	return fallback
}

// remainingNutrition keeps whatever nutrition data is not already split out
// into ingredients and allergens, as compact JSON.
func remainingNutrition(nutrition map[string]any) string {
	rest := make(map[string]any, len(nutrition))
	for k, v := range nutrition {
		if k == "ingredients" || k == "allergens" || v == nil {
			continue
		}
		rest[k] = v
	}
	if len(rest) == 0 {
		return ""
	}
	b, err := json.Marshal(rest)
	if err != nil {
		return ""
	}
	return string(b)
}

func getMap(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func getSlice(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

func getString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

func getBool(m map[string]any, key string, def bool) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getFloat reads a price. Numbers and numeric strings (with either decimal
// separator) are accepted; anything else, and any negative or non-finite
// value, yields 0.
func getFloat(m map[string]any, key string) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch v := m[key].(type) {
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.Replace(strings.TrimSpace(v), ",", ".", 1), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < 0 {
		return 0, true
	}
	return f, true
}
