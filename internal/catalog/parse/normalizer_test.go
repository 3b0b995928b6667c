package parse

import (
	"errors"
	"strings"
	"testing"

	"catalog_ingest/internal/catalog/models"
)

const fullPayload = `{
  "id": "10005",
  "ean": "8480000100057",
  "display_name": "Leche entera Hacendado",
  "brand": "Hacendado",
  "published": true,
  "thumbnail": "https://prod.img/10005.jpg?fit=crop&h=300",
  "photos": [{"zoom": "https://prod.img/z.jpg", "thumbnail": "https://prod.img/t.jpg"}],
  "details": {"description": "<p>Leche   entera</p>"},
  "categories": [
    {"id": 18, "name": "Huevos, leche y mantequilla",
     "categories": [{"id": 72, "name": "Leche y bebidas vegetales",
                     "categories": [{"id": 999, "name": "Too deep"}]}]}
  ],
  "price_instructions": {
    "unit_price": "0.97",
    "bulk_price": "0.97",
    "reference_price": "0.970",
    "reference_format": "L"
  },
  "nutrition_information": {"ingredients": "Leche entera", "allergens": "<strong>Leche</strong>", "energy": "65 kcal"}
}`

func normalize(t *testing.T, body string) (*models.Product, error) {
	t.Helper()
	return NewNormalizer("https://tienda.mercadona.es/").Normalize(models.RawResponse{ID: "10005", Body: []byte(body)})
}

func TestNormalizeFullPayload(t *testing.T) {
	p, err := normalize(t, fullPayload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := map[string][2]string{
		"product_id":   {p.ProductID, "10005"},
		"ean":          {p.EAN, "8480000100057"},
		"name":         {p.Name, "Leche entera Hacendado"},
		"brand":        {p.Brand, "Hacendado"},
		"category":     {p.Category, "Huevos, leche y mantequilla"},
		"subcategory":  {p.Subcategory, "Leche y bebidas vegetales"},
		"unit_measure": {p.UnitMeasure, "L"},
		"description":  {p.Description, "Leche entera"},
		"allergens":    {p.Allergens, "Leche"},
		"image_url":    {p.ImageURL, "https://prod.img/10005.jpg?fit=crop&h=300"},
		"thumbnail":    {p.ThumbnailURL, "https://prod.img/t.jpg"},
		"url":          {p.URL, "https://tienda.mercadona.es/product/10005"},
		"nutrition":    {p.NutritionalInfo, `{"energy":"65 kcal"}`},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}
	if p.Price != 0.97 || p.UnitPrice != 0.97 {
		t.Errorf("unexpected prices %v / %v", p.Price, p.UnitPrice)
	}
	if !p.IsAvailable {
		t.Errorf("expected available product")
	}
}

func TestNormalizeMissingCategories(t *testing.T) {
	p, err := normalize(t, `{"display_name": "Pan"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Category != "" || p.Subcategory != "" {
		t.Errorf("expected empty categories, got %q / %q", p.Category, p.Subcategory)
	}
}

func TestNormalizeCategoryWithoutChildren(t *testing.T) {
	p, err := normalize(t, `{"display_name": "Pan", "categories": [{"name": "Panadería", "categories": null}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Category != "Panadería" || p.Subcategory != "" {
		t.Errorf("got %q / %q", p.Category, p.Subcategory)
	}
}

func TestNormalizeNonNumericPrice(t *testing.T) {
	p, err := normalize(t, `{"display_name": "Pan", "price_instructions": {"unit_price": "abc", "bulk_price": null}}`)
	if err != nil {
		t.Fatalf("record with a name must stay storable, got %v", err)
	}
	if p.Price != 0 || p.UnitPrice != 0 {
		t.Errorf("expected zero prices, got %v / %v", p.Price, p.UnitPrice)
	}
}

func TestNormalizePriceVariants(t *testing.T) {
	p, err := normalize(t, `{"display_name": "Aceite", "price_instructions": {"unit_price": 4.5, "bulk_price": "3,75"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Price != 4.5 {
		t.Errorf("numeric price: got %v", p.Price)
	}
	if p.UnitPrice != 3.75 {
		t.Errorf("comma decimal bulk price fallback: got %v", p.UnitPrice)
	}

	p, err = normalize(t, `{"display_name": "Aceite", "price_instructions": {"unit_price": "-2"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Price != 0 {
		t.Errorf("negative price must clamp to 0, got %v", p.Price)
	}
}

func TestNormalizeMissingName(t *testing.T) {
	for _, body := range []string{
		`{"display_name": ""}`,
		`{"display_name": "   "}`,
		`{"brand": "Hacendado"}`,
		`{"display_name": null}`,
	} {
		p, err := normalize(t, body)
		if !errors.Is(err, ErrMissingName) {
			t.Errorf("%s: expected ErrMissingName, got %v", body, err)
		}
		if p != nil {
			t.Errorf("%s: no product may be returned", body)
		}
	}
}

func TestNormalizeMalformedPayload(t *testing.T) {
	for _, body := range []string{
		`<html>`,
		`[1,2]`,
		`null`,
		``,
		`{"display_name":"Pan"} <html>oops`,
		`{"display_name":"Pan"}{"display_name":"Leche"}`,
	} {
		_, err := normalize(t, body)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%q: expected ErrMalformedPayload, got %v", body, err)
		}
	}
}

func TestNormalizeNullsAtAnyDepth(t *testing.T) {
	p, err := normalize(t, `{
		"display_name": "Agua",
		"details": null,
		"price_instructions": null,
		"nutrition_information": {"ingredients": null},
		"categories": [null],
		"photos": null,
		"published": null
	}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Description != "" || p.Price != 0 || p.Category != "" || p.Ingredients != "" || p.NutritionalInfo != "" {
		t.Errorf("unexpected defaults %+v", p)
	}
	if !p.IsAvailable {
		t.Errorf("availability defaults to true")
	}
}

func TestNormalizeTruncatesLongName(t *testing.T) {
	long := strings.Repeat("palabra ", 60)
	p, err := normalize(t, `{"display_name": "`+long+`"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(p.Name)) > maxNameLen {
		t.Errorf("name has %d runes", len([]rune(p.Name)))
	}
}

func TestNormalizeAllowsTrailingWhitespace(t *testing.T) {
	if _, err := normalize(t, "{\"display_name\": \"Pan\"}\n\t "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
