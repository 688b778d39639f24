package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchcenter/bus"
	"matchcenter/config"
	"matchcenter/database"
	"matchcenter/logger"
	"matchcenter/services"
	"matchcenter/web"
)

func main() {
	logger.Println("Starting Match Center Service...")

	// 加载配置
	cfg := config.Load()

	// 连接数据库
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 运行数据库迁移
	if err := database.Migrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	logger.Println("Database connected and migrated")

	// 创建事件总线
	eventBus, err := newEventBus(cfg)
	if err != nil {
		logger.Fatalf("Failed to create event bus: %v", err)
	}
	defer eventBus.Close()

	logger.Printf("Event bus ready (%s)", cfg.EventBus)

	// 创建存储和实时协调服务
	store := services.NewMatchStore(db)
	realtime := services.NewRealtimeService(store, services.NewScheduler())

	// 创建WebSocket Hub
	hub := web.NewHub(realtime)
	realtime.SetBroadcaster(hub)
	go hub.Run()

	// 启动总线到房间的转发
	bridge := web.NewBusBridge(eventBus, hub)
	if err := bridge.Start(context.Background()); err != nil {
		logger.Fatalf("Failed to start bus bridge: %v", err)
	}

	// 初始化并启动模拟器
	simulator := services.NewSimulator(store, eventBus, cfg.SimMatchCount)
	if err := simulator.Seed(); err != nil {
		logger.Fatalf("Failed to seed matches: %v", err)
	}
	simulator.Start(time.Duration(cfg.SimMinuteMs) * time.Millisecond)

	// 启动比赛监控 (每小时执行一次)
	monitor := services.NewMatchMonitor(store)
	monitor.Start(1 * time.Hour)

	// 启动Web服务器
	server := web.NewServer(cfg, store, hub, eventBus)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("Web server error: %v", err)
		}
	}()

	logger.Printf("Web server started on port %s", cfg.Port)
	logger.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down service...")

	// 清理资源
	simulator.Stop()
	monitor.Stop()
	bridge.Stop()
	server.Stop()

	logger.Println("Service stopped")
}

// newEventBus 按配置选择事件总线实现
func newEventBus(cfg *config.Config) (bus.EventBus, error) {
	switch cfg.EventBus {
	case "amqp":
		return bus.NewAMQPBus(cfg.AMQPURL)
	case "memory":
		return bus.NewMemoryBus(), nil
	default:
		return bus.NewRedisBus(cfg.RedisURL)
	}
}
