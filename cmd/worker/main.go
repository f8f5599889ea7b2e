package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/config"
	postgres_wrapper "github.com/tradefront/fixdesk/pkg/infra/postgres"
	redis_wrapper "github.com/tradefront/fixdesk/pkg/infra/redis"
	"github.com/tradefront/fixdesk/pkg/logging"
	"github.com/tradefront/fixdesk/pkg/oms/journal"
	"github.com/tradefront/fixdesk/pkg/oms/repo"
	"github.com/tradefront/fixdesk/pkg/oms/worker"
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

	configBytes, err := json.MarshalIndent(cfg, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := nats.Connect(cfg.Journal.NATSUrl)
	if err != nil {
		zap.S().Errorf("nats connect fail with err: %v", err)
		panic(err)
	}
	js, err := nc.JetStream()
	if err != nil {
		panic(err)
	}
	_, _ = js.AddStream(&nats.StreamConfig{
		Name:     journal.StreamName,
		Subjects: []string{journal.StreamName + ".*"},
	})

	db, err := postgres_wrapper.InitPostgres(cfg.AuditDB)
	if err != nil {
		zap.S().Errorf("init db fail with err: %v", err)
		panic(err)
	}

	sqlRepo := repo.NewRepo(db)

	rdb, err := redis_wrapper.InitRedis(cfg.Redis)
	if err != nil {
		zap.S().Warnf("redis unavailable, dedup falls back to db: %v", err)
		rdb = nil
	}

	w := worker.NewWorker(sqlRepo, rdb)
	go func() {
		subject := cfg.Journal.Subject
		if subject == "" {
			subject = journal.DefaultSubject
		}
		if err := w.StartConsumer(ctx, js, subject, cfg.Journal.Durable); err != nil && err != context.Canceled {
			zap.S().Errorf("consumer stopped: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	cancel()
}
