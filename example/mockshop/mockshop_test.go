package mockshop

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestShop_FlipsStock(t *testing.T) {
	shop := New(time.Millisecond, 2*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	get := func() string {
		rec := httptest.NewRecorder()
		shop.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/ps5", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		return rec.Body.String()
	}

	first := get()
	if !strings.Contains(first, `id="sold-out"`) || !strings.Contains(first, "schema.org/OutOfStock") {
		t.Fatalf("new product should start sold out:\n%s", first)
	}

	time.Sleep(5 * time.Millisecond)
	second := get()
	if !strings.Contains(second, `id="buy"`) || !strings.Contains(second, "schema.org/InStock") {
		t.Errorf("product should be back in stock:\n%s", second)
	}
}

func TestShop_UnknownPath(t *testing.T) {
	shop := New(time.Second, 2*time.Second, nil)
	for _, path := range []string{"/", "/product/", "/health"} {
		rec := httptest.NewRecorder()
		shop.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}
