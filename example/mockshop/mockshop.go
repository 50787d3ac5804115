// Package mockshop serves fake product pages whose stock level changes over
// time, for trying StockPulse without hitting real retailers.
package mockshop

import (
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// pageTemplate marks stock with the #buy button or the #sold-out notice,
// and carries schema.org availability for the json-ld extractor.
const pageTemplate = `<!DOCTYPE html>
<html><head><title>%[1]s</title>
<script type="application/ld+json">{"@type":"Product","name":%[2]q,"offers":{"@type":"Offer","availability":"https://schema.org/%[3]s"}}</script>
</head><body>
<h1>%[1]s</h1>
%[4]s
</body></html>`

type product struct {
	inStock      bool
	nextChangeAt time.Time
}

// Shop flips every product between in stock and sold out at random
// intervals.
type Shop struct {
	minFlip, maxFlip time.Duration
	logger           *slog.Logger

	mu       sync.Mutex
	products map[string]*product
}

// New creates a Shop whose products change state every minFlip to maxFlip.
func New(minFlip, maxFlip time.Duration, logger *slog.Logger) *Shop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFlip <= minFlip {
		maxFlip = minFlip + time.Second
	}
	return &Shop{
		minFlip:  minFlip,
		maxFlip:  maxFlip,
		logger:   logger,
		products: make(map[string]*product),
	}
}

// ServeHTTP serves /product/<sku>. New products start sold out.
func (s *Shop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sku, ok := strings.CutPrefix(r.URL.Path, "/product/")
	if !ok || sku == "" {
		http.NotFound(w, r)
		return
	}

	// simulate small latency variance
	time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

	inStock := s.stock(sku)

	availability, body := "OutOfStock", `<p id="sold-out">Sold out</p>`
	if inStock {
		availability, body = "InStock", `<button id="buy">Add to cart</button>`
	}
	name := html.EscapeString(sku)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageTemplate, name, sku, availability, body)
}

func (s *Shop) stock(sku string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[sku]
	if !exists {
		p = &product{nextChangeAt: time.Now().Add(s.flipDelay())}
		s.products[sku] = p
	}
	if time.Now().After(p.nextChangeAt) {
		p.inStock = !p.inStock
		p.nextChangeAt = time.Now().Add(s.flipDelay())
		s.logger.Info("stock change", "sku", sku, "in_stock", p.inStock)
	}
	return p.inStock
}

func (s *Shop) flipDelay() time.Duration {
	return s.minFlip + time.Duration(rand.Int63n(int64(s.maxFlip-s.minFlip)))
}
