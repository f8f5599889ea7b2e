package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/config"
	"github.com/tradefront/fixdesk/pkg/logging"
	"github.com/tradefront/fixdesk/pkg/oms"
	"github.com/tradefront/fixdesk/pkg/oms/api"
	"github.com/tradefront/fixdesk/pkg/oms/fixclient"
	"github.com/tradefront/fixdesk/pkg/oms/journal"
	"github.com/tradefront/fixdesk/pkg/oms/ledger"
	riskrule "github.com/tradefront/fixdesk/pkg/oms/risk_rule"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	log := logging.NewLogger(logging.INFO)
	defer log.Sync() // nolint

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	gateway := fixclient.New(cfg.Gateway)
	orderLedger := ledger.New()

	var publisher journal.Publisher = journal.Noop{}
	if cfg.Journal != nil && cfg.Journal.NATSUrl != "" {
		p, err := journal.NewNATSPublisher(cfg.Journal.NATSUrl, cfg.Journal.Subject)
		if err != nil {
			zap.S().Warnf("journal disabled, nats connect failed: %v", err)
		} else {
			publisher = p
		}
	}

	var rules []riskrule.RiskRule
	if cfg.Risk != nil {
		if cfg.Risk.MaxOrderQuantity > 0 {
			rules = append(rules, &riskrule.MaxQuantityRule{Max: cfg.Risk.MaxOrderQuantity})
		}
		if cfg.Risk.MaxOrderNotional != "" {
			maxNotional, err := decimal.NewFromString(cfg.Risk.MaxOrderNotional)
			if err != nil {
				panic(fmt.Sprintf("bad max_order_notional: %v", err))
			}
			rules = append(rules, &riskrule.MaxNotionalRule{Max: maxNotional})
		}
	}

	commandTimeout := time.Duration(cfg.CommandTimeoutSeconds) * time.Second
	commands := oms.NewCommandService(orderLedger, gateway, commandTimeout, rules...)

	reconcileCfg := oms.ReconcilerConfig{}
	if cfg.Reconcile != nil {
		reconcileCfg.Interval = time.Duration(cfg.Reconcile.IntervalSeconds) * time.Second
		reconcileCfg.FetchTimeout = time.Duration(cfg.Reconcile.FetchTimeoutSeconds) * time.Second
	}
	engine := oms.NewReconciler(orderLedger, gateway, publisher, reconcileCfg)
	engine.Start(ctx)

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.Handle("/debug/pprof/", http.DefaultServeMux)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				zap.S().Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	server := api.NewServer(commands, orderLedger, engine, log)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Errorf("api server stopped: %v", err)
		}
	}()

	fmt.Println("fixdesk started. Press Ctrl+C to exit.")

	<-sigs
	fmt.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()

	fmt.Println("Exited cleanly.")
}
