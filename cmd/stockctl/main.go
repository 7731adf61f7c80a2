// stockctl is a small operational CLI over the stock engine: inspect
// levels and ledgers, receive and transfer stock, and dry-run
// fulfillment plans against the Postgres store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/app"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/config"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/db"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/kafka"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/postgres"
)

const usage = `usage: stockctl <command> [flags]

commands:
  levels                         print stock levels for all locations
  ledger   -variant -location    print the ledger for one pair
  receive  -dest -items [-ref]   receive stock from a supplier
  transfer -src -dest -items     move stock between locations
  reserve  -variant -location -qty -order
  release  -variant -location -qty -order
  plan     -order -items [-strategy] [-lat -lon]

-items is a comma-separated list of variant=qty or variant=qty@unitcost
(receive only); for plan, lineitem:variant=qty.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	var events core.EventPublisher = core.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.StockEventsTopic, logger)
		defer publisher.Close()
		events = publisher
	}

	svc := app.NewService(postgres.NewStore(pool), events, logger)

	if err := run(ctx, svc, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, svc *app.Service, command string, args []string) error {
	switch command {
	case "levels":
		return printLevels(ctx, svc)
	case "ledger":
		return printLedger(ctx, svc, args)
	case "receive":
		return receive(ctx, svc, args)
	case "transfer":
		return transfer(ctx, svc, args)
	case "reserve", "release":
		return reserveOrRelease(ctx, svc, command, args)
	case "plan":
		return plan(ctx, svc, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printLevels(ctx context.Context, svc *app.Service) error {
	levels, err := svc.StockLevels(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-20s %-10s %10s %10s %10s %12s\n", "SKU", "LOCATION", "ON HAND", "RESERVED", "AVAILABLE", "UNIT COST")
	for _, l := range levels {
		fmt.Printf("%-20s %-10s %10d %10d %10d %12s\n",
			l.SKU, l.LocationCode, l.OnHand, l.Reserved, l.Available, l.UnitCost.StringFixed(4))
	}
	return nil
}

func printLedger(ctx context.Context, svc *app.Service, args []string) error {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	variant := fs.String("variant", "", "variant id")
	location := fs.String("location", "", "stock location id")
	fs.Parse(args)

	entries, err := svc.LedgerEntries(ctx, *variant, *location)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s %+6d %-16s transfer=%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Delta, e.Originator, e.TransferID)
	}
	return nil
}

func receive(ctx context.Context, svc *app.Service, args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	dest := fs.String("dest", "", "destination location id")
	items := fs.String("items", "", "variant=qty[@unitcost],...")
	ref := fs.String("ref", "", "free-text reference")
	fs.Parse(args)

	quantities, costs, err := parseItems(*items)
	if err != nil {
		return err
	}
	t, err := svc.ReceiveStock(ctx, app.ReceiveStockRequest{
		DestinationLocationID: *dest,
		Reference:             *ref,
		Quantities:            quantities,
		UnitCosts:             costs,
	})
	if err != nil {
		return err
	}
	fmt.Printf("received %s into %s\n", t.Number, *dest)
	return nil
}

func transfer(ctx context.Context, svc *app.Service, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	src := fs.String("src", "", "source location id")
	dest := fs.String("dest", "", "destination location id")
	items := fs.String("items", "", "variant=qty,...")
	ref := fs.String("ref", "", "free-text reference")
	fs.Parse(args)

	quantities, _, err := parseItems(*items)
	if err != nil {
		return err
	}
	t, err := svc.TransferStock(ctx, app.TransferStockRequest{
		SourceLocationID:      *src,
		DestinationLocationID: *dest,
		Reference:             *ref,
		Quantities:            quantities,
	})
	if err != nil {
		return err
	}
	fmt.Printf("transferred %s: %s → %s\n", t.Number, *src, *dest)
	return nil
}

func reserveOrRelease(ctx context.Context, svc *app.Service, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	variant := fs.String("variant", "", "variant id")
	location := fs.String("location", "", "stock location id")
	qty := fs.Int64("qty", 0, "quantity")
	order := fs.String("order", "", "order id")
	fs.Parse(args)

	if command == "reserve" {
		return svc.Reserve(ctx, *variant, *location, *qty, *order)
	}
	return svc.Release(ctx, *variant, *location, *qty, *order)
}

func plan(ctx context.Context, svc *app.Service, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	orderID := fs.String("order", "", "order id")
	items := fs.String("items", "", "lineitem:variant=qty,...")
	strategy := fs.String("strategy", string(core.StrategyHighestStock), "fulfillment strategy")
	lat := fs.Float64("lat", 0, "customer latitude")
	lon := fs.Float64("lon", 0, "customer longitude")
	fs.Parse(args)

	order := core.PlannerOrder{ID: *orderID}
	for _, part := range strings.Split(*items, ",") {
		lineID, rest, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("invalid plan item %q, want lineitem:variant=qty", part)
		}
		variantID, qtyStr, ok := strings.Cut(rest, "=")
		if !ok {
			return fmt.Errorf("invalid plan item %q, want lineitem:variant=qty", part)
		}
		qty, err := strconv.ParseInt(qtyStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quantity in %q: %w", part, err)
		}
		order.LineItems = append(order.LineItems, core.OrderLineItem{ID: lineID, VariantID: variantID, Quantity: qty})
	}

	var customer *core.Coordinates
	if visited("lat", fs) && visited("lon", fs) {
		customer = &core.Coordinates{Latitude: *lat, Longitude: *lon}
	}

	result, err := svc.PlanOrder(ctx, order, core.StrategyKind(*strategy), customer)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func visited(name string, fs *flag.FlagSet) bool {
	seen := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			seen = true
		}
	})
	return seen
}

// parseItems parses "variant=qty" or "variant=qty@unitcost" pairs.
func parseItems(s string) (map[string]int64, map[string]decimal.Decimal, error) {
	quantities := make(map[string]int64)
	costs := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(s, ",") {
		variantID, rest, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, nil, fmt.Errorf("invalid item %q, want variant=qty", part)
		}
		qtyStr, costStr, hasCost := strings.Cut(rest, "@")
		qty, err := strconv.ParseInt(qtyStr, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid quantity in %q: %w", part, err)
		}
		quantities[variantID] = qty
		if hasCost {
			cost, err := decimal.NewFromString(costStr)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid unit cost in %q: %w", part, err)
			}
			costs[variantID] = cost
		}
	}
	if len(costs) == 0 {
		costs = nil
	}
	return quantities, costs, nil
}
