package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/metrics"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	account_app "github.com/wyfcoding/optionsvenue/internal/account/application"
	account_mysql "github.com/wyfcoding/optionsvenue/internal/account/infrastructure/persistence/mysql"
	account_http "github.com/wyfcoding/optionsvenue/internal/account/interfaces/http"
	contract_app "github.com/wyfcoding/optionsvenue/internal/contract/application"
	contract_domain "github.com/wyfcoding/optionsvenue/internal/contract/domain"
	contract_messaging "github.com/wyfcoding/optionsvenue/internal/contract/infrastructure/messaging"
	contract_mysql "github.com/wyfcoding/optionsvenue/internal/contract/infrastructure/persistence/mysql"
	contract_http "github.com/wyfcoding/optionsvenue/internal/contract/interfaces/http"
	marketdata_infra "github.com/wyfcoding/optionsvenue/internal/marketdata/infrastructure"
	position_app "github.com/wyfcoding/optionsvenue/internal/position/application"
	position_http "github.com/wyfcoding/optionsvenue/internal/position/interfaces/http"
	risk_app "github.com/wyfcoding/optionsvenue/internal/risk/application"
	risk_domain "github.com/wyfcoding/optionsvenue/internal/risk/domain"
	risk_messaging "github.com/wyfcoding/optionsvenue/internal/risk/infrastructure/messaging"
	risk_mysql "github.com/wyfcoding/optionsvenue/internal/risk/infrastructure/persistence/mysql"
	risk_consumer "github.com/wyfcoding/optionsvenue/internal/risk/interfaces/consumer"
	risk_http "github.com/wyfcoding/optionsvenue/internal/risk/interfaces/http"
	strategy_app "github.com/wyfcoding/optionsvenue/internal/strategy/application"
	strategy_http "github.com/wyfcoding/optionsvenue/internal/strategy/interfaces/http"
	"github.com/wyfcoding/optionsvenue/pkg/cache"
	"github.com/wyfcoding/optionsvenue/pkg/mq"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/venue/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}

	// 2. Logger
	logger := logging.NewLogger("optionsvenue", "main", viper.GetString("log.level"))
	slog.SetDefault(logger.Logger)

	// 3. Metrics
	metricsImpl := metrics.NewMetrics("optionsvenue")
	if port := viper.GetInt("metrics.port"); port > 0 {
		go metricsImpl.ExposeHttp(strconv.Itoa(port))
	}

	// 4. Database
	dsn := viper.GetString("database.source")
	db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}

	// Auto Migrate
	if err := db.AutoMigrate(
		&contract_mysql.OptionModel{},
		&contract_mysql.TradeModel{},
		&account_mysql.BalanceModel{},
		&risk_mysql.LiquidationModel{},
	); err != nil {
		panic(fmt.Sprintf("migrate db failed: %v", err))
	}

	// 5. Infrastructure
	redisCache, err := cache.New(cache.Config{
		Host:     viper.GetString("redis.host"),
		Port:     viper.GetInt("redis.port"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})
	if err != nil {
		panic(fmt.Sprintf("connect redis failed: %v", err))
	}

	kafkaCfg := mq.KafkaConfig{
		Brokers:      viper.GetStringSlice("kafka.brokers"),
		GroupID:      viper.GetString("kafka.group_id"),
		MaxRetries:   3,
		RetryBackoff: 100,
	}
	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()

	// Spot price: simulated feed behind a redis cache with staleness guard
	feed := marketdata_infra.NewSimulatedFeed(map[string]decimal.Decimal{
		"ETH": decimal.NewFromInt(2000),
		"BTC": decimal.NewFromInt(40000),
	})
	spotSource := marketdata_infra.NewCachedSource(feed, redisCache, 2*time.Second, 30*time.Second)

	optionStore := contract_mysql.NewOptionStore(db)
	balanceStore := account_mysql.NewBalanceStore(db)
	liquidationStore := risk_mysql.NewLiquidationStore(db)

	// 6. Application
	ctx := context.Background()

	accounts := account_app.NewBalanceManager(balanceStore)
	if err := accounts.Rehydrate(ctx); err != nil {
		panic(fmt.Sprintf("rehydrate balances failed: %v", err))
	}

	orderBook := contract_app.NewOrderBook(accounts, spotSource, optionStore,
		contract_messaging.NewKafkaEventPublisher(producer))
	if grace := viper.GetDuration("contract.exercise_grace"); grace > 0 {
		orderBook.SetExerciseGrace(grace)
	}
	if err := orderBook.Rehydrate(ctx); err != nil {
		panic(fmt.Sprintf("rehydrate order book failed: %v", err))
	}

	pricingCfg := position_app.PricingConfig{
		DefaultVolatility: viper.GetFloat64("pricing.default_volatility"),
		RiskFreeRate:      viper.GetFloat64("pricing.risk_free_rate"),
	}
	if pricingCfg.DefaultVolatility <= 0 {
		pricingCfg = position_app.DefaultPricingConfig()
	}
	positions := position_app.NewPositionManager(accounts, pricingCfg)

	engine := risk_app.NewLiquidationEngine(
		risk_domain.DefaultRiskParams(),
		liquidationStore,
		risk_messaging.NewKafkaEventPublisher(producer),
		viper.GetDuration("risk.check_interval"),
		logger.Logger,
	)

	builder := strategy_app.NewStrategyBuilder()

	// 7. Interfaces
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	sys := router.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "READY"}) })
	}

	contract_http.NewOptionsHandler(orderBook).RegisterRoutes(router)
	account_http.NewAccountHandler(accounts).RegisterRoutes(router)
	position_http.NewPositionHandler(positions, spotSource).RegisterRoutes(router)
	risk_http.NewRiskHandler(engine, liquidationStore).RegisterRoutes(router)
	strategy_http.NewStrategyHandler(builder, spotSource,
		pricingCfg.DefaultVolatility, pricingCfg.RiskFreeRate).RegisterRoutes(router)

	// Exposure projection: contract events drive the risk engine's tracked view
	projection := risk_consumer.NewExposureProjectionHandler(engine, logger.Logger)
	eventConsumer := mq.NewConsumer(kafkaCfg, []string{
		contract_domain.OptionListedEventType,
		contract_domain.TradeExecutedEventType,
		contract_domain.OptionExercisedEventType,
		contract_domain.OptionExpiredEventType,
	})

	// 8. Start
	rootCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(rootCtx)

	httpPort := viper.GetString("server.http_port")
	if httpPort == "" {
		httpPort = "8080"
	}
	server := &http.Server{Addr: fmt.Sprintf(":%s", httpPort), Handler: router}
	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := engine.Start(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return eventConsumer.Run(gctx, projection.Handle)
	})

	sweepInterval := viper.GetDuration("contract.sweep_interval")
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := orderBook.ExpireSweep(gctx); n > 0 {
					slog.Info("expire sweep completed", "expired", n)
				}
			}
		}
	})

	// 9. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
		eventConsumer.Close()
		redisCache.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
	slog.Info("Server exiting")
}
