package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
)

var log = logging.Logger("barter")

var rootCmd = &cobra.Command{
	Use:   "barter-api",
	Short: "Barter marketplace API",
	Long: `barter-api обслуживает маркетплейс обменов: объявления, предложения обмена,
эскроу, чаты и уведомления для Telegram Mini App.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API, realtime-сервер и фоновые обработчики",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции базы данных",
	RunE:  runMigrate,
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Обслуживание outbox уведомлений",
}

var outboxDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Однократно доставить все готовые события outbox",
	RunE:  runOutboxDrain,
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Обслуживание предложений обмена",
}

var tradesExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Перевести просроченные предложения в статус expired",
	RunE:  runTradesExpire,
}

var debug bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	outboxCmd.AddCommand(outboxDrainCmd)
	tradesCmd.AddCommand(tradesExpireCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(tradesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup загружает конфигурацию, настраивает уровень логов и открывает базу
func setup() (*config.Config, *db.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	if debug {
		level = logging.LevelDebug
	}
	logging.SetAllLoggers(level)

	database, err := db.InitDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("❌ Ошибка при инициализации базы данных: %w", err)
	}
	return cfg, database, nil
}
