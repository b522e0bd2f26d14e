package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"basket-trading/internal/broker"
	"basket-trading/internal/broker/factory"
	"basket-trading/internal/credentials"
	"basket-trading/internal/execution"
	"basket-trading/internal/markethours"
	"basket-trading/internal/metrics"
	"basket-trading/internal/model"
	"basket-trading/internal/sizing"
	"basket-trading/internal/tradeerr"
)

func init() {
	register(command{name: "login-url", usage: "print the broker login URL", broker: true, run: cmdLoginURL})
	register(command{name: "requirements", usage: "show the auth flow and check configured credentials", run: cmdRequirements})
	register(command{name: "session", usage: "create a session (-request-token or -totp)", broker: true, run: cmdSession})
	register(command{name: "catalog", usage: "download the instrument catalog, or -search PREFIX", run: cmdCatalog})
	register(command{name: "quote", usage: "quote instruments: quote NSE:TCS INFY", session: true, run: cmdQuote})
	register(command{name: "min", usage: "minimum investment for a basket", session: true, run: cmdMin})
	register(command{name: "buy", usage: "buy a basket: -basket NAME|-stocks SPEC -amount N [-dry-run]", session: true, run: cmdBuy})
	register(command{name: "rebalance", usage: "rebalance holdings to a basket [-extra-cash N] [-dry-run]", session: true, run: cmdRebalance})
	register(command{name: "valuation", usage: "value holdings and funds", session: true, run: cmdValuation})
	register(command{name: "orders", usage: "list today's orders", session: true, run: cmdOrders})
	register(command{name: "cancel", usage: "cancel an order: cancel ORDER_ID [-variety regular]", session: true, run: cmdCancel})
	register(command{name: "history", usage: "recent batches from the journal, or -batch ID", run: cmdHistory})
	register(command{name: "seal", usage: "encrypt a credentials YAML: seal -in creds.yaml -out creds.enc", run: cmdSeal})
	register(command{name: "serve", usage: "serve /metrics and /healthz and follow published batches", run: cmdServe})
}

func flags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func cmdLoginURL(_ context.Context, a *app, _ []string) error {
	fmt.Println(a.broker.LoginURL())
	return nil
}

type marketReport struct {
	Phase      markethours.Phase `json:"phase"`
	Status     string            `json:"status"`
	AcceptsAMO bool              `json:"acceptsAmo"`
}

type requirementsReport struct {
	Requirements factory.Requirements `json:"requirements"`
	Credentials  factory.Validation   `json:"credentials"`
	Market       marketReport         `json:"market"`
}

// checkRequirements reads credentials straight from the provider so missing
// fields are listed instead of failing adapter construction.
func checkRequirements(ctx context.Context, t broker.Type, p factory.CredentialProvider, now time.Time) (requirementsReport, error) {
	req, err := factory.GetRequirements(t)
	if err != nil {
		return requirementsReport{}, err
	}
	rep := requirementsReport{
		Requirements: req,
		Market: marketReport{
			Phase:      markethours.PhaseAt(now),
			Status:     markethours.StatusString(now),
			AcceptsAMO: markethours.AcceptsAMO(now),
		},
	}
	creds, err := p.Credentials(ctx, t)
	if err != nil {
		rep.Credentials = factory.Validation{Errors: []string{err.Error()}}
		return rep, nil
	}
	rep.Credentials = factory.ValidateCredentials(t, creds)
	return rep, nil
}

func cmdRequirements(ctx context.Context, a *app, _ []string) error {
	rep, err := checkRequirements(ctx, a.brokerType, a.credentialProvider(), time.Now())
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func cmdSession(ctx context.Context, a *app, args []string) error {
	fs := flags("session")
	requestToken := fs.String("request-token", "", "request token from the login redirect (Zerodha)")
	code := fs.String("totp", "", "one-time code (Angel One; derived from the TOTP seed when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := a.broker.CreateSession(ctx, broker.AuthArtifact{RequestToken: *requestToken, TOTP: *code})
	if err != nil {
		return err
	}
	if err := a.sessions.save(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return printJSON(sess)
}

func cmdCatalog(ctx context.Context, a *app, args []string) error {
	fs := flags("catalog")
	search := fs.String("search", "", "search the stored catalog by symbol prefix instead of downloading")
	limit := fs.Int("limit", 20, "max search results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *search != "" {
		rows, err := a.catalog.Search(ctx, a.brokerType, *search, *limit)
		if err != nil {
			return err
		}
		return printJSON(rows)
	}

	if err := a.connect(ctx); err != nil {
		return err
	}
	rows, err := a.broker.DownloadCatalog(ctx)
	if err != nil {
		return err
	}
	if err := a.catalog.Replace(ctx, a.brokerType, rows); err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.ReplaceCatalog(ctx, a.brokerType, rows); err != nil {
			a.log.Warn("redis catalog snapshot failed", slog.String("error", err.Error()))
		}
	}

	counts := map[model.InstrumentType]int{}
	for i := range rows {
		counts[rows[i].InstrumentType]++
	}
	info, _, err := a.catalog.LastRefresh(ctx, a.brokerType)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"broker":      a.brokerType,
		"rows":        info.Rows,
		"byType":      counts,
		"refreshedAt": info.RefreshedAt,
	})
}

func cmdQuote(ctx context.Context, a *app, args []string) error {
	fs := flags("quote")
	ltp := fs.Bool("ltp", false, "last traded price only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	instruments, err := parseInstruments(fs.Args())
	if err != nil {
		return err
	}
	if *ltp {
		prices, err := a.broker.GetLTP(ctx, instruments)
		if err != nil {
			return err
		}
		return printJSON(prices)
	}
	quotes, err := a.broker.GetQuotes(ctx, instruments)
	if err != nil {
		return err
	}
	return printJSON(quotes)
}

func cmdMin(ctx context.Context, a *app, args []string) error {
	fs := flags("min")
	name := fs.String("basket", "", "basket name from the policy file")
	stocks := fs.String("stocks", "", "inline basket, e.g. NSE:TCS=50,INFY=50")
	if err := fs.Parse(args); err != nil {
		return err
	}
	basket, err := basketArg(a.policy, *name, *stocks)
	if err != nil {
		return err
	}
	if err := sizing.ValidateBasket(basket, a.policy.Limits); err != nil {
		return err
	}
	svc, err := a.service(false, false)
	if err != nil {
		return err
	}
	prices, err := svc.Prices(ctx, stockInstruments(basket))
	if err != nil {
		return err
	}
	minAmount, err := sizing.CalculateMinInvestment(basket, prices)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"minimumInvestment": minAmount, "prices": prices})
}

func cmdBuy(ctx context.Context, a *app, args []string) error {
	fs := flags("buy")
	name := fs.String("basket", "", "basket name from the policy file")
	stocks := fs.String("stocks", "", "inline basket, e.g. NSE:TCS=50,INFY=50")
	amount := fs.Float64("amount", 0, "investment amount in rupees")
	preview := fs.Bool("preview", false, "size the basket without placing orders")
	dryRun := fs.Bool("dry-run", false, "fill orders on paper at quoted prices")
	anyTime := fs.Bool("any-time", false, "with -dry-run, ignore market hours")
	if err := fs.Parse(args); err != nil {
		return err
	}
	basket, err := basketArg(a.policy, *name, *stocks)
	if err != nil {
		return err
	}
	svc, err := a.service(*dryRun, *anyTime)
	if err != nil {
		return err
	}

	if *preview {
		plan, _, err := svc.PreviewBasket(ctx, basket, *amount)
		if err != nil {
			return err
		}
		return printJSON(plan)
	}
	res, err := svc.BuyBasket(ctx, basket, *amount)
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	return batchErr(res.Report)
}

func cmdRebalance(ctx context.Context, a *app, args []string) error {
	fs := flags("rebalance")
	name := fs.String("basket", "", "basket name from the policy file")
	stocks := fs.String("stocks", "", "inline basket, e.g. NSE:TCS=50,INFY=50")
	extra := fs.Float64("extra-cash", 0, "cash to add to the basket value")
	preview := fs.Bool("preview", false, "compute the orders without placing them")
	dryRun := fs.Bool("dry-run", false, "fill orders on paper at quoted prices")
	anyTime := fs.Bool("any-time", false, "with -dry-run, ignore market hours")
	if err := fs.Parse(args); err != nil {
		return err
	}
	basket, err := basketArg(a.policy, *name, *stocks)
	if err != nil {
		return err
	}
	svc, err := a.service(*dryRun, *anyTime)
	if err != nil {
		return err
	}

	if *preview {
		plan, _, err := svc.PreviewRebalance(ctx, basket, *extra)
		if err != nil {
			return err
		}
		return printJSON(plan)
	}
	res, err := svc.Rebalance(ctx, basket, *extra)
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	return batchErr(res.Report)
}

// batchErr turns a FAILED batch into a non-zero exit. PARTIAL batches exit 0;
// the report lists which orders failed.
func batchErr(r execution.Report) error {
	if r.Status == execution.StatusFailed {
		return tradeerr.New(tradeerr.ErrRejected, "batch", "all %d orders failed (batch %s)", r.Failed, r.BatchID)
	}
	return nil
}

func cmdValuation(ctx context.Context, a *app, _ []string) error {
	svc, err := a.service(false, false)
	if err != nil {
		return err
	}
	v, err := svc.Valuation(ctx)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func cmdOrders(ctx context.Context, a *app, _ []string) error {
	orders, err := a.broker.GetOrders(ctx)
	if err != nil {
		return err
	}
	return printJSON(orders)
}

func cmdCancel(ctx context.Context, a *app, args []string) error {
	fs := flags("cancel")
	variety := fs.String("variety", model.VarietyRegular, "order variety")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return tradeerr.Validation("cancel", "want exactly one order id")
	}
	res, err := a.broker.CancelOrder(ctx, fs.Arg(0), *variety)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	fs := flags("history")
	n := fs.Int("n", 20, "number of batches")
	batch := fs.String("batch", "", "show the orders of one batch")
	redisRecent := fs.Bool("redis", false, "read the shared recent list from Redis instead of the local journal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case *batch != "":
		outcomes, err := a.journal.BatchOutcomes(*batch)
		if err != nil {
			return err
		}
		return printJSON(outcomes)
	case *redisRecent:
		if a.redis == nil {
			return errors.New("redis is not configured")
		}
		reports, err := a.redis.RecentReports(ctx, *n)
		if err != nil {
			return err
		}
		return printJSON(reports)
	}
	batches, err := a.journal.RecentBatches(*n)
	if err != nil {
		return err
	}
	return printJSON(batches)
}

func cmdSeal(_ context.Context, a *app, args []string) error {
	fs := flags("seal")
	in := fs.String("in", "", "plaintext credentials YAML keyed by broker")
	out := fs.String("out", "", "encrypted output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.box == nil {
		return tradeerr.Validation("seal", "CREDENTIALS_KEY is not set")
	}
	if *in == "" || *out == "" {
		return tradeerr.Validation("seal", "-in and -out are required")
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	var all map[broker.Type]broker.Credentials
	if err := yaml.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("parse %s: %w", *in, err)
	}
	var problems []string
	for t, c := range all {
		if v := factory.ValidateCredentials(t, c); !v.Valid {
			problems = append(problems, fmt.Sprintf("%s: %s", t, strings.Join(v.Errors, "; ")))
		}
	}
	if len(problems) > 0 {
		return tradeerr.Validation("seal", "%s", strings.Join(problems, " | "))
	}
	sealed, err := credentials.Seal(a.box, all)
	if err != nil {
		return err
	}
	return os.WriteFile(*out, sealed, 0o600)
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	fs := flags("serve")
	addr := fs.String("addr", a.cfg.MetricsAddr, "listen address")
	interval := fs.Duration("check-interval", 15*time.Second, "health probe interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" {
		*addr = ":9090"
	}

	a.health.StartLivenessChecker(ctx, *interval)
	srv := metrics.NewServer(*addr, a.registry, a.health)
	srv.Start()

	if a.redis != nil {
		go func() {
			err := a.redis.SubscribeReports(ctx, a.brokerType, func(r execution.Report) {
				a.log.Info("batch finished",
					slog.String("batch_id", r.BatchID),
					slog.String("kind", r.Kind),
					slog.String("status", string(r.Status)),
					slog.Int("placed", r.Placed),
					slog.Int("failed", r.Failed))
				a.metrics.HandleReport(ctx, r)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("report subscription ended", slog.String("error", err.Error()))
			}
		}()
	}

	<-ctx.Done()
	sctx, cancel := shutdownTimeout()
	defer cancel()
	return srv.Stop(sctx)
}

func stockInstruments(stocks []model.BasketStock) []model.Instrument {
	out := make([]model.Instrument, len(stocks))
	for i, s := range stocks {
		out[i] = model.Instrument{Exchange: s.Exchange, Symbol: s.Symbol}
	}
	return out
}
