package clients

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"catalog_ingest/pkg/middleware"
)

const sitemapPath = "/sitemap.xml"

type SitemapClient struct {
	ApiURL string
	client *http.Client
	log    *zap.Logger
}

func NewSitemapClient(apiURL, userAgent string, timeout time.Duration, transport http.RoundTripper, log *zap.Logger) *SitemapClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	headers := DefaultHeaders(userAgent, "")
	headers.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")
	return &SitemapClient{
		ApiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: middleware.Chain(transport,
				middleware.StaticHeaders(headers),
				middleware.Prometheus(sitemapPath),
			),
		},
		log: log.Named("sitemap_client"),
	}
}

type urlSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// ListURLs returns every page URL listed by the root sitemap. A sitemap index is
// followed one level deep; a nested sitemap that fails is logged and skipped.
func (c *SitemapClient) ListURLs(ctx context.Context) ([]string, error) {
	root, err := c.get(ctx, c.ApiURL+sitemapPath)
	if err != nil {
		return nil, err
	}

	urls, children, err := parseSitemap(root)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", sitemapPath, err)
	}

	for _, child := range children {
		body, err := c.get(ctx, child)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("skipping nested sitemap", zap.String("url", child), zap.Error(err))
			continue
		}
		nested, _, err := parseSitemap(body)
		if err != nil {
			c.log.Warn("skipping unparsable nested sitemap", zap.String("url", child), zap.Error(err))
			continue
		}
		urls = append(urls, nested...)
	}

	c.log.Info("sitemap loaded", zap.Int("urls", len(urls)), zap.Int("nested_sitemaps", len(children)))
	return urls, nil
}

func (c *SitemapClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-OK status for %s: %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64*maxBodyBytes))
}

// parseSitemap accepts both <urlset> and <sitemapindex> documents.
func parseSitemap(body []byte) (urls []string, children []string, err error) {
	var set urlSet
	if err := decodeXML(body, &set); err != nil {
		return nil, nil, err
	}
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	if len(urls) > 0 {
		return urls, nil, nil
	}

	var index sitemapIndex
	if err := decodeXML(body, &index); err != nil {
		return nil, nil, err
	}
	for _, s := range index.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			children = append(children, loc)
		}
	}
	return nil, children, nil
}

func decodeXML(body []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charsetReader
	return dec.Decode(v)
}

// charsetReader covers the single-byte encodings legacy storefront sitemaps declare.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	case "iso-8859-1", "latin1", "latin-1":
		enc = charmap.ISO8859_1
	case "iso-8859-15", "latin9":
		enc = charmap.ISO8859_15
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
