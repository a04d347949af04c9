package erp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Version information
const (
	Version = "2.0.0"
	Author  = "Mikel Calvo"
	Year    = "2026"
)

// CmdPing tests the connection
func (c *Client) CmdPing(ctx context.Context) error {
	fmt.Printf("%sTesting connection to ERP...%s\n", Blue, Reset)

	c.DetectConnection(ctx)

	user, err := c.Ping(ctx)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	fmt.Printf("%s✓ Connection successful%s\n", Green, Reset)
	fmt.Printf("  Authenticated as: %s%s%s\n", Yellow, user, Reset)
	if c.Mode == "vpn" {
		fmt.Printf("  Mode: %sVPN direct%s (%s)\n", Cyan, Reset, c.ActiveURL)
	} else {
		fmt.Printf("  Mode: %sInternet%s (%s)\n", Yellow, Reset, c.ActiveURL)
	}
	return nil
}

// CmdConfig shows current configuration
func (c *Client) CmdConfig(ctx context.Context) error {
	fmt.Printf("%sCurrent configuration:%s\n", Blue, Reset)
	if c.Config.ERPVPN != "" {
		fmt.Printf("  VPN URL: %s\n", c.Config.ERPVPN)
	} else {
		fmt.Printf("  VPN URL: %snot configured%s\n", Yellow, Reset)
	}
	fmt.Printf("  Internet URL: %s\n", c.Config.ERPURL)
	fmt.Printf("  API Key: %s...\n", maskKey(c.Config.APIKey))
	fmt.Printf("  API Secret: ****\n")

	if c.Config.NginxCookie != "" {
		fmt.Printf("  Nginx Cookie: configured\n")
	} else {
		fmt.Printf("  Nginx Cookie: %snot configured%s (needed for internet mode)\n", Yellow, Reset)
	}
	fmt.Printf("  VAT rate: %s\n", c.Config.VATRate)
	fmt.Printf("  Debounce: stock %s, quantity %s\n", c.Config.StockDebounce, c.Config.QtyDebounce)
	if c.Config.LogFile != "" {
		fmt.Printf("  Log file: %s (%s)\n", c.Config.LogFile, c.Config.LogLevel)
	}
	if c.Config.MetricsAddr != "" {
		fmt.Printf("  Metrics: %s\n", c.Config.MetricsAddr)
	}

	fmt.Println()
	c.DetectConnection(ctx)
	if c.Mode == "vpn" {
		fmt.Printf("  Active mode: %sVPN direct%s\n", Cyan, Reset)
	} else {
		fmt.Printf("  Active mode: %sInternet%s\n", Yellow, Reset)
	}
	fmt.Printf("  Active URL: %s\n", c.ActiveURL)

	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}

// CmdStock prints a warehouse's stock snapshot
func (c *Client) CmdStock(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: erp-cli stock <warehouse>")
	}
	fmt.Printf("%sFetching stock for warehouse: %s%s\n", Blue, args[0], Reset)

	snap, err := c.FetchWarehouseStock(ctx, args[0])
	if err != nil {
		return err
	}
	if snap.Len() == 0 {
		fmt.Printf("%sNo stock found in: %s%s\n", Yellow, args[0], Reset)
		return nil
	}

	fmt.Printf("\n%sStock in %s:%s\n", Cyan, args[0], Reset)
	for _, e := range snap.Entries() {
		fmt.Printf("  %s%s%s  %s base units\n", Green, e.Label(), Reset, e.TotalBase)
		for _, u := range e.UOMs {
			fmt.Printf("      %-10s %-10s x%-5s %s\n", u.ID, u.Type, u.Factor, u.UnitPrice.StringFixed(2))
		}
	}
	fmt.Printf("\n  %sItems: %d%s\n", Yellow, snap.Len(), Reset)
	return nil
}

// CmdBatches prints the batches that can cover a return line
func (c *Client) CmdBatches(ctx context.Context, args []string) error {
	if len(args) < 5 {
		return fmt.Errorf("usage: erp-cli batches <warehouse> <item> <uom> <qty> <expiry>")
	}
	qty, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil || qty < 1 {
		return fmt.Errorf("invalid quantity: %s", args[3])
	}

	batches, err := c.FetchItemBatches(ctx, BatchQuery{
		WarehouseID: args[0],
		ItemID:      args[1],
		UOMID:       args[2],
		Quantity:    qty,
		ExpiryDate:  args[4],
	})
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Printf("%sNo batch matches %s expiring %s%s\n", Yellow, args[1], args[4], Reset)
		return nil
	}

	fmt.Printf("%s%-16s %-12s %10s %10s%s\n", Cyan, "BATCH", "EXPIRY", "QTY", "PRICE", Reset)
	fmt.Println(strings.Repeat("-", 51))
	for _, b := range batches {
		fmt.Printf("%-16s %-12s %10s %10s\n", b.Number, b.Expiry, b.Quantity, b.Price.StringFixed(2))
	}
	return nil
}
