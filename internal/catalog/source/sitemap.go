package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"catalog_ingest/internal/catalog/models"
)

const productPathMarker = "/product/"

var (
	// productPathRe matches .../product/{id}/{slug} and captures the id.
	productPathRe = regexp.MustCompile(`/product/([^/]*)`)
	productIDRe   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// URLLister supplies the raw sitemap URL list.
type URLLister interface {
	ListURLs(ctx context.Context) ([]string, error)
}

// SitemapSource discovers identifiers from product URLs listed in the sitemap.
// URLs outside the product path are ignored; product URLs whose identifier
// cannot be extracted are logged and skipped. Duplicate identifiers are
// yielded once.
type SitemapSource struct {
	lister URLLister
	log    *zap.Logger

	mu       sync.Mutex
	prepared bool
	urls     []string
	pos      int
	seen     map[models.ProductIdentifier]struct{}
	skipped  int
}

func NewSitemapSource(lister URLLister, log *zap.Logger) *SitemapSource {
	return &SitemapSource{
		lister: lister,
		log:    log.Named("sitemap_source"),
		seen:   make(map[models.ProductIdentifier]struct{}),
	}
}

func (s *SitemapSource) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prepared {
		return errors.New("sitemap source already prepared")
	}
	urls, err := s.lister.ListURLs(ctx)
	if err != nil {
		return fmt.Errorf("list sitemap urls: %w", err)
	}
	s.urls = urls
	s.prepared = true
	return nil
}

func (s *SitemapSource) Next() (models.ProductIdentifier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pos < len(s.urls) {
		raw := s.urls[s.pos]
		s.pos++

		id, ok, err := ExtractProductID(raw)
		if !ok {
			continue
		}
		if err != nil {
			s.skipped++
			s.log.Warn("skipping product url", zap.String("url", raw), zap.Error(err))
			continue
		}
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}
		return id, true
	}
	return "", false
}

// Skipped counts product URLs dropped because no identifier could be extracted.
func (s *SitemapSource) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// ExtractProductID applies the positional rule .../product/{id}/... . ok is
// false for URLs that are not product pages at all.
func ExtractProductID(raw string) (id models.ProductIdentifier, ok bool, err error) {
	if !strings.Contains(raw, productPathMarker) {
		return "", false, nil
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", true, fmt.Errorf("parse url: %w", err)
	}
	m := productPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", true, errors.New("product path not found")
	}
	if !productIDRe.MatchString(m[1]) {
		return "", true, fmt.Errorf("invalid product identifier %q", m[1])
	}
	return models.ProductIdentifier(m[1]), true, nil
}
