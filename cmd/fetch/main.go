package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"quoteengine/internal/aggregate"
	"quoteengine/internal/app"
	"quoteengine/internal/config"
	"quoteengine/internal/logging"
	"quoteengine/internal/quote"
)

type options struct {
	configPath string
	symbols    []string
	table      bool
	// quiet drops the log level to warn when nothing asked for a level
	quiet bool
}

// newFlags declares the CLI and binds engine flags into v so they override file and env values.
func newFlags(v *viper.Viper, args []string) (options, error) {
	d := config.Default()
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	var o options
	fs.StringVar(&o.configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	fs.StringSliceVar(&o.symbols, "symbols", nil, "comma-separated symbols, e.g. 005930,AAPL")
	fs.BoolVar(&o.table, "table", false, "print a table instead of JSON")
	fs.Int("concurrency", d.Engine.Concurrency, "symbols fetched in parallel")
	fs.Duration("timeout", d.Engine.FetchTimeout, "per-symbol fetch timeout")
	fs.Duration("batch-timeout", d.Engine.BatchTimeout, "overall batch cap (0 = none)")
	fs.String("domestic-endpoint", d.Domestic.Endpoint, "domestic quote API base URL")
	fs.String("international-endpoint", d.International.Endpoint, "international quote API base URL")
	fs.Duration("domestic-interval", d.Domestic.MinInterval, "minimum spacing between domestic calls")
	fs.String("log-level", d.Log.Level, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	for key, flag := range map[string]string{
		"engine.concurrency":     "concurrency",
		"engine.fetch_timeout":   "timeout",
		"engine.batch_timeout":   "batch-timeout",
		"domestic.endpoint":      "domestic-endpoint",
		"international.endpoint": "international-endpoint",
		"domestic.min_interval":  "domestic-interval",
		"log.level":              "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return o, fmt.Errorf("bind %s: %w", flag, err)
		}
	}
	o.symbols = append(o.symbols, fs.Args()...)
	o.quiet = !fs.Changed("log-level") && os.Getenv(config.EnvPrefix+"_LOG_LEVEL") == ""
	return o, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "fetch:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	v := config.NewViper()
	o, err := newFlags(v, args)
	if err != nil {
		return err
	}
	if len(o.symbols) == 0 {
		return fmt.Errorf("no symbols provided")
	}
	cfg, err := config.LoadWith(v, o.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if o.quiet {
		cfg.Log.Level = "warn"
	}
	cfg.Log.Format = "console"
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	eng, err := app.Build(cfg, log, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	b, err := eng.Orchestrator.FetchBatch(ctx, o.symbols)
	if err != nil {
		return err
	}
	log.Debug("done", zap.String("batch_id", b.ID))

	if o.table {
		return writeTable(out, b)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

func writeTable(out io.Writer, b *quote.Batch) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\tAS OF\tNOTE")
	for _, row := range aggregate.Display(b.Results) {
		price, change, asOf := "-", "-", "-"
		if row.Price != nil {
			price = row.Price.String()
		}
		if row.Change != nil {
			change = row.Change.String()
		}
		if row.AsOf > 0 {
			asOf = time.Unix(row.AsOf, 0).UTC().Format(time.RFC3339)
		}
		note := row.Error
		if row.Stale {
			note = "stale"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Symbol, price, change, asOf, note)
	}
	fmt.Fprintf(tw, "\n%d requested, %d ok, %d failed, %d cached\n",
		b.Requested, b.Succeeded, b.Failed, b.Cached)
	return tw.Flush()
}
