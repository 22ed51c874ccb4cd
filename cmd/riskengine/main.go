package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
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

	"github.com/wyfcoding/riskengine/internal/engine/application"
	"github.com/wyfcoding/riskengine/internal/engine/infrastructure/messaging"
	"github.com/wyfcoding/riskengine/internal/engine/infrastructure/persistence/mysql"
	"github.com/wyfcoding/riskengine/internal/engine/interfaces/consumer"
	http_server "github.com/wyfcoding/riskengine/internal/engine/interfaces/http"
	"github.com/wyfcoding/riskengine/internal/engine/interfaces/ws"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/riskengine/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}

	// 2. Logger
	logging.InitLogger("riskengine", "main", viper.GetString("log.level"))
	ctx := context.Background()

	// 3. Metrics
	m := metrics.NewMetrics("riskengine")

	// 4. Engine
	engineCfg := application.Config{
		CommissionBps: decimal.NewFromFloat(viper.GetFloat64("engine.commission_bps")),
		StartingCash:  decimal.NewFromFloat(viper.GetFloat64("engine.starting_cash")),
		RiskInterval:  viper.GetDuration("engine.risk_interval"),
		CommandBuffer: viper.GetInt("engine.command_buffer"),
	}

	opts := []application.Option{application.WithMetrics(m)}

	// 5. Optional MySQL archive
	if dsn := viper.GetString("database.source"); dsn != "" {
		db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{
			Logger: logging.NewGormLogger(logging.GetLogger(), 200*time.Millisecond),
		})
		if err != nil {
			panic(fmt.Sprintf("connect db failed: %v", err))
		}
		archive, err := mysql.NewHistoryArchive(db)
		if err != nil {
			panic(fmt.Sprintf("init history archive failed: %v", err))
		}
		opts = append(opts, application.WithSink(archive))
		logging.Info(ctx, "history archive enabled")
	}

	// 6. Optional Kafka
	var kafkaCfg *messaging.Config
	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		kafkaCfg = &messaging.Config{
			Brokers:        brokers,
			GroupID:        viper.GetString("kafka.group_id"),
			MaxRetries:     viper.GetInt("kafka.max_retries"),
			RetryBackoff:   viper.GetInt("kafka.retry_backoff_ms"),
			SessionTimeout: viper.GetInt("kafka.session_timeout_s"),
		}
	}

	var producer *messaging.Producer
	if topic := viper.GetString("kafka.events_topic"); kafkaCfg != nil && topic != "" {
		producer = messaging.NewProducer(*kafkaCfg)
		opts = append(opts, application.WithSink(messaging.NewEventPublisher(producer, topic)))
	}

	engine := application.NewEngine(engineCfg, opts...)
	run(ctx, engine, m, kafkaCfg)

	if producer != nil {
		producer.Close()
	}
}

func run(ctx context.Context, engine *application.Engine, m *metrics.Metrics, kafkaCfg *messaging.Config) {
	g, ctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 引擎 actor
	g.Go(func() error {
		return engine.Run(runCtx)
	})

	// Kafka 消费
	if kafkaCfg != nil {
		if topic := viper.GetString("kafka.ticks_topic"); topic != "" {
			tickConsumer := consumer.NewTickConsumer(messaging.NewConsumer(*kafkaCfg, topic), engine)
			g.Go(func() error {
				return tickConsumer.Run(runCtx)
			})
		}
		if topic := viper.GetString("kafka.executions_topic"); topic != "" {
			execConsumer := consumer.NewExecutionConsumer(messaging.NewConsumer(*kafkaCfg, topic), engine)
			g.Go(func() error {
				return execConsumer.Run(runCtx)
			})
		}
	}

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	handler := http_server.NewEngineHandler(engine)
	handler.RegisterRoutes(r.Group(""))

	hub := ws.NewHub(engine)
	r.GET("/ws/stream", hub.Handle)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	httpPort := viper.GetString("server.http_port")
	if httpPort == "" {
		httpPort = "8086"
	}
	server := &http.Server{Addr: fmt.Sprintf(":%s", httpPort), Handler: r}

	g.Go(func() error {
		logging.Info(ctx, "HTTP server starting", "port", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// 优雅退出
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logging.Info(ctx, "shutting down...")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error(ctx, "server exited with error", "error", err)
	}
}
