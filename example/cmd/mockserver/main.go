// Standalone mock shop for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/stockpulse serve -c example/stockpulse.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/stockpulse/example/mockshop"
)

func main() {
	fmt.Println("Mock shop starting on :9999")
	fmt.Println("Products flip between sold out and in stock every 20-60s")
	fmt.Println("Pages: http://localhost:9999/product/<sku>")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	shop := mockshop.New(20*time.Second, 60*time.Second, slog.Default())
	if err := http.ListenAndServe(":9999", shop); err != nil {
		slog.Error("mock shop error", "error", err)
		os.Exit(1)
	}
}
