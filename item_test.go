package stockpulse

import (
	"context"
	"strings"
	"testing"
)

func TestNewItem(t *testing.T) {
	tests := []struct {
		name     string
		itemName string
		url      string
		wantErr  string
	}{
		{name: "valid", itemName: "PS5", url: "https://www.amazon.com/dp/B0CL61F39H"},
		{name: "http allowed", itemName: "PS5", url: "http://shop.example.com/ps5"},
		{name: "empty name", itemName: "  ", url: "https://www.amazon.com/dp/B0", wantErr: "name cannot be empty"},
		{name: "no scheme", itemName: "PS5", url: "www.amazon.com/dp/B0", wantErr: "scheme"},
		{name: "ftp", itemName: "PS5", url: "ftp://amazon.com/dp/B0", wantErr: "scheme"},
		{name: "no host", itemName: "PS5", url: "https:///dp/B0", wantErr: "host"},
		{name: "unparseable", itemName: "PS5", url: "https://[::1", wantErr: "invalid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NewItem(tt.itemName, tt.url)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NewItem() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewItem() error = %v", err)
			}
			if item.Name() != tt.itemName || item.URL() != tt.url {
				t.Errorf("NewItem() = (%q, %q)", item.Name(), item.URL())
			}
		})
	}
}

func TestNewItem_TrimsWhitespace(t *testing.T) {
	item, err := NewItem("  PS5 ", " https://www.amazon.com/dp/B0 ")
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if item.Name() != "PS5" || item.URL() != "https://www.amazon.com/dp/B0" {
		t.Errorf("NewItem() = (%q, %q), want trimmed values", item.Name(), item.URL())
	}
}

func TestNewRetailer(t *testing.T) {
	tests := []struct {
		name    string
		rname   string
		hosts   []string
		wantErr bool
	}{
		{name: "valid", rname: "game", hosts: []string{"game.co.uk", "*.game.co.uk"}},
		{name: "brace pattern", rname: "target", hosts: []string{"{www,m}.target.com"}},
		{name: "empty name", rname: "", hosts: []string{"game.co.uk"}, wantErr: true},
		{name: "no hosts", rname: "game", wantErr: true},
		{name: "blank host", rname: "game", hosts: []string{" "}, wantErr: true},
		{name: "bad glob", rname: "game", hosts: []string{"[game.co.uk"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRetailer(tt.rname, nil, tt.hosts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRetailer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && r.extractor == nil {
				t.Error("NewRetailer() should default the extractor")
			}
		})
	}
}

func TestNewRetailerFunc(t *testing.T) {
	if _, err := NewRetailerFunc("api", nil, "api.example.com"); err == nil {
		t.Error("NewRetailerFunc(nil) expected error")
	}

	check := func(context.Context, string) (Status, error) { return StatusInStock, nil }
	r, err := NewRetailerFunc("api", check, "api.example.com")
	if err != nil {
		t.Fatalf("NewRetailerFunc() error = %v", err)
	}

	hosts := r.Hosts()
	hosts[0] = "mutated"
	if r.Hosts()[0] != "api.example.com" {
		t.Error("Hosts() should return a copy")
	}
}
