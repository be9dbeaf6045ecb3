package main

import (
	"context"
	"flag"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/DataHighway-DHX/rewards-allowance/src/allowance"
	"github.com/DataHighway-DHX/rewards-allowance/src/common"
	"github.com/DataHighway-DHX/rewards-allowance/src/ledgerapi"
	"github.com/DataHighway-DHX/rewards-allowance/src/mpowerfeed"
	"github.com/DataHighway-DHX/rewards-allowance/src/postgres"
)

type rewardsdConfig struct {
	common.CommonConfig `yaml:",inline"`

	Feed   mpowerfeed.Config      `yaml:",inline"`
	Ledger ledgerapi.Config       `yaml:",inline"`
	Engine allowance.EngineConfig `yaml:",inline"`

	BlockPollSeconds        int `yaml:"block_poll_seconds"`
	DistributionTickMinutes int `yaml:"distribution_tick_minutes"`
}

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := ioutil.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg := rewardsdConfig{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Ledger.RPCServer, "node", cfg.Ledger.RPCServer, "address of the chain node rpc, default `localhost:9933`")
	flag.StringVar(&cfg.Feed.Endpoint, "mpower", cfg.Feed.Endpoint, "url of the mpower feed endpoint")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, `address of the redis instance"`)
	flag.StringVar(&cfg.Engine.TreasuryWallet, "treasury", cfg.Engine.TreasuryWallet, `custody wallet funding all reward payouts"`)

	flag.Parse()

	if cfg.BlockPollSeconds == 0 {
		cfg.BlockPollSeconds = 6
	}
	if cfg.DistributionTickMinutes == 0 {
		cfg.DistributionTickMinutes = 1
	}

	log.Println("----------------------------------")
	log.Printf("initializing rewardsd")
	log.Printf("\tnode:          %s", cfg.Ledger.RPCServer)
	log.Printf("\tmpower feed:   %s", cfg.Feed.Endpoint)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\ttreasury:  	 %s", cfg.Engine.TreasuryWallet)
	log.Printf("\tmock:  		 %t", cfg.Ledger.Mock)
	log.Println("----------------------------------")

	logger := common.ConfigureZap(zap.InfoLevel)

	st := postgres.NewStore(cfg.PostgresConfig)
	if err := postgres.Migrate(context.Background()); err != nil {
		panic(err)
	}

	rd := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddress,
		DB:   0, // use default DB
	})
	if err := rd.Ping(context.Background()).Err(); err != nil {
		panic(errors.Wrapf(err, "FATAL, failed to connect to redis at %s", cfg.RedisAddress))
	}
	defer rd.Close()

	rpc := ledgerapi.NewRPCClient(cfg.Ledger, logger)
	var ledger ledgerapi.Ledger = rpc
	var tip ledgerapi.BlockSource = rpc
	if cfg.Ledger.Mock {
		mock := ledgerapi.NewMockLedger()
		mock.FundCustody(cfg.Engine.TreasuryWallet, 1_000_000_000)
		ledger = mock
		// mock runs have no node to poll; synthesize the block clock too
		tip = ledgerapi.NewMockBlockSource()
	}

	feed := mpowerfeed.NewClient(cfg.Feed, logger)
	lock := allowance.NewRedisDispatchLock(rd)
	engine := allowance.NewEngine(st, ledger, feed, lock, cfg.Engine, logger)

	if cfg.PromPort != "" {
		allowance.StartPromServer(logger, cfg.PromPort)
	}
	if cfg.HealthCheckPort != "" {
		go beginReadyzHandler(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.StartPipeline(ctx, time.Duration(cfg.DistributionTickMinutes)*time.Minute)
	engine.StartBlockListener(ctx, tip, time.Duration(cfg.BlockPollSeconds)*time.Second)
}

func beginReadyzHandler(cfg rewardsdConfig) {
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pg, err := postgres.GetConnection(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		defer pg.Close(r.Context())
		if err := pg.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	http.ListenAndServe(cfg.HealthCheckPort, nil)
}
