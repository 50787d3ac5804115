package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/stockpulse"
	"github.com/jpalmerr/stockpulse/example/mockshop"
)

func main() {
	// start a fake shop whose products restock every 20-60 seconds
	shop := mockshop.New(20*time.Second, 60*time.Second, slog.Default())
	go func() {
		if err := http.ListenAndServe(":9999", shop); err != nil {
			slog.Error("mock shop error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	local, err := stockpulse.NewRetailer("mockshop",
		stockpulse.SelectorExtractor("#buy", "#sold-out"),
		"localhost",
	)
	if err != nil {
		slog.Error("failed to create retailer", "error", err)
		os.Exit(1)
	}

	// grid API: 2 consoles × 2 colours = 4 items from one declaration
	items, err := stockpulse.NewItemGrid("Console",
		stockpulse.WithURLTemplate("http://localhost:9999/product/{{.model}}-{{.colour}}"),
		stockpulse.WithDimensions(map[string][]string{
			"model":  {"ps5", "switch"},
			"colour": {"black", "white"},
		}),
	)
	if err != nil {
		slog.Error("failed to create item grid", "error", err)
		os.Exit(1)
	}

	tracker, err := stockpulse.New(
		stockpulse.WithItems(items...),
		stockpulse.WithRetailers(local, stockpulse.Amazon(), stockpulse.BestBuy()),
		stockpulse.WithSettings(stockpulse.Settings{IntervalSeconds: 5}),
		stockpulse.WithPort(8080),
		stockpulse.WithAlertCallback(func(a stockpulse.Alert) {
			fmt.Printf("  >> %s is back in stock: %s\n", a.Name, a.URL)
		}),
	)
	if err != nil {
		slog.Error("failed to create tracker", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   StockPulse Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Items:                                              ║")
	fmt.Println("  ║   • 4 mock products (2 models × 2 colours via Grid)   ║")
	fmt.Println("  ║   • add real Amazon / Best Buy links from the page    ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tracker.Start(ctx); err != nil {
		slog.Error("stockpulse error", "error", err)
		os.Exit(1)
	}
}
