package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/stockpulse/internal/stock"
)

// errUndetermined is wrapped when an extractor could not decide on a status.
var errUndetermined = errors.New("page gave no availability signal")

// Capability resolves the stock status of a retailer product page.
//
// A capability may block on network I/O. It should honour ctx, but the
// [Dispatcher] enforces its own deadline regardless.
type Capability interface {
	Check(ctx context.Context, rawURL string) (stock.Status, error)
}

// CapabilityFunc adapts a plain function to [Capability].
type CapabilityFunc func(ctx context.Context, rawURL string) (stock.Status, error)

// Check implements [Capability].
func (f CapabilityFunc) Check(ctx context.Context, rawURL string) (stock.Status, error) {
	return f(ctx, rawURL)
}

// Extractor interprets a parsed retailer page.
//
// Extractors return InStock or OutOfStock when the page carries a clear
// signal and Unknown otherwise.
type Extractor func(doc *goquery.Document, statusCode int) stock.Status

// PageCapability is the standard [Capability]: fetch the page with a
// [Client], parse it as HTML and hand it to an [Extractor].
type PageCapability struct {
	client  *Client
	extract Extractor
}

// NewPageCapability creates a [PageCapability].
func NewPageCapability(client *Client, extract Extractor) *PageCapability {
	return &PageCapability{client: client, extract: extract}
}

// Check implements [Capability].
//
// Transport failures, non-2xx responses, unparseable bodies and pages without
// an availability signal all come back as FetchError with a non-nil error.
func (p *PageCapability) Check(ctx context.Context, rawURL string) (stock.Status, error) {
	resp := p.client.Fetch(ctx, rawURL)
	if fe := classify(rawURL, resp.Error, resp.StatusCode); fe != nil {
		return stock.FetchError, fe
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return stock.FetchError, &Error{Kind: KindParse, URL: rawURL, Err: fmt.Errorf("failed to parse page: %w", err)}
	}

	status := p.extract(doc, resp.StatusCode)
	if status != stock.InStock && status != stock.OutOfStock {
		return stock.FetchError, &Error{Kind: KindParse, URL: rawURL, Err: errUndetermined}
	}
	return status, nil
}
