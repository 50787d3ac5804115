package stockpulse

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SelectorExtractor returns an [Extractor] that decides availability from
// the presence of page elements.
//
// Status mapping:
//   - [StatusInStock]: inStock matches at least one element
//   - [StatusOutOfStock]: outOfStock matches at least one element, or
//     outOfStock is empty and inStock matches nothing
//   - [StatusUnknown]: neither selector matches
//
// Example:
//
//	// an enabled add-to-cart button means the item can be bought
//	extractor := stockpulse.SelectorExtractor("#add-to-cart-button:not([disabled])", "#outOfStock")
func SelectorExtractor(inStock, outOfStock string) Extractor {
	return func(doc *goquery.Document, _ int) Status {
		if doc.Find(inStock).Length() > 0 {
			return StatusInStock
		}
		if outOfStock == "" || doc.Find(outOfStock).Length() > 0 {
			return StatusOutOfStock
		}
		return StatusUnknown
	}
}

// TextExtractor returns an [Extractor] that reads the text of the elements
// matched by selector and compares it (case-insensitively) with the given
// phrases.
//
// The out-of-stock phrase is checked first, so "not in stock" can be told
// apart from "in stock". Returns [StatusUnknown] if the selector matches
// nothing or neither phrase is found.
//
// Example:
//
//	extractor := stockpulse.TextExtractor("#availability", "in stock", "currently unavailable")
func TextExtractor(selector, inStockText, outOfStockText string) Extractor {
	return func(doc *goquery.Document, _ int) Status {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			return StatusUnknown
		}
		return matchText(sel.Text(), inStockText, outOfStockText)
	}
}

// ContainsExtractor returns an [Extractor] that searches the visible page
// body for the given phrases (case-insensitive).
//
// It behaves like [TextExtractor] over the whole <body>. Use it for simple
// pages without stable element ids.
//
// Example:
//
//	extractor := stockpulse.ContainsExtractor("add to basket", "sold out")
func ContainsExtractor(inStockText, outOfStockText string) Extractor {
	return func(doc *goquery.Document, _ int) Status {
		body := doc.Find("body").Clone()
		body.Find("script, style, noscript").Remove()
		return matchText(body.Text(), inStockText, outOfStockText)
	}
}

// matchText checks outOfStock before inStock; empty phrases never match.
func matchText(text, inStock, outOfStock string) Status {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	if outOfStock != "" && strings.Contains(text, strings.ToLower(outOfStock)) {
		return StatusOutOfStock
	}
	if inStock != "" && strings.Contains(text, strings.ToLower(inStock)) {
		return StatusInStock
	}
	return StatusUnknown
}

// JSONLDExtractor is an [Extractor] that reads schema.org Offer availability
// from the page's JSON-LD blocks, which most large retailers embed for
// search engines.
//
// Any offer that can be bought (InStock, LimitedAvailability, OnlineOnly,
// PreOrder) yields [StatusInStock]. Otherwise any offer that cannot
// (OutOfStock, SoldOut, Discontinued, BackOrder, InStoreOnly) yields
// [StatusOutOfStock]. Pages without offers yield [StatusUnknown].
var JSONLDExtractor Extractor = func(doc *goquery.Document, _ int) Status {
	result := StatusUnknown
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		for _, a := range collectAvailability(data, nil) {
			switch availabilityStatus(a) {
			case StatusInStock:
				result = StatusInStock
				return false
			case StatusOutOfStock:
				result = StatusOutOfStock
			}
		}
		return true
	})
	return result
}

// collectAvailability walks decoded JSON and gathers every "availability"
// string, wherever it is nested (offers, @graph, arrays of products).
func collectAvailability(data interface{}, acc []string) []string {
	switch v := data.(type) {
	case map[string]interface{}:
		for k, child := range v {
			if s, ok := child.(string); ok && k == "availability" {
				acc = append(acc, s)
				continue
			}
			acc = collectAvailability(child, acc)
		}
	case []interface{}:
		for _, child := range v {
			acc = collectAvailability(child, acc)
		}
	}
	return acc
}

// availabilityStatus maps a schema.org ItemAvailability value, given as a
// full URL ("https://schema.org/InStock") or a bare name, to a Status.
func availabilityStatus(value string) Status {
	if i := strings.LastIndex(value, "/"); i >= 0 {
		value = value[i+1:]
	}
	switch strings.ToLower(value) {
	case "instock", "limitedavailability", "onlineonly", "preorder", "presale":
		return StatusInStock
	case "outofstock", "soldout", "discontinued", "backorder", "instoreonly":
		return StatusOutOfStock
	default:
		return StatusUnknown
	}
}

// FirstMatch returns an [Extractor] that tries multiple extractors in order,
// returning the first result that is not [StatusUnknown].
//
// Example:
//
//	// structured data first, page markup as a fallback
//	extractor := stockpulse.FirstMatch(
//	    stockpulse.JSONLDExtractor,
//	    stockpulse.SelectorExtractor("#add-to-cart", "#sold-out"),
//	)
func FirstMatch(extractors ...Extractor) Extractor {
	return func(doc *goquery.Document, statusCode int) Status {
		for _, extractor := range extractors {
			if status := extractor(doc, statusCode); status != StatusUnknown {
				return status
			}
		}
		return StatusUnknown
	}
}

// DefaultExtractor is used by retailers created without an extractor.
// It reads JSON-LD offers only.
var DefaultExtractor = JSONLDExtractor
