package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rajivgeraev/barter-api/internal/outbox"
	"github.com/rajivgeraev/barter-api/internal/services/trade"
)

func runMigrate(cmd *cobra.Command, args []string) error {
	_, database, err := setup()
	if err != nil {
		return err
	}
	defer database.CloseDB()

	if err := database.Migrate(contextOf(cmd)); err != nil {
		return err
	}
	log.Infof("✅ Миграции применены")
	return nil
}

// runOutboxDrain доставляет события без realtime-канала и Telegram:
// уведомления только сохраняются в базе
func runOutboxDrain(cmd *cobra.Command, args []string) error {
	cfg, database, err := setup()
	if err != nil {
		return err
	}
	defer database.CloseDB()

	dispatcher := outbox.NewDispatcher(database, outbox.NewNotificationSink(database, nil, nil), cfg.Outbox)
	ctx := contextOf(cmd)

	total := 0
	for {
		n, err := dispatcher.DrainOnce(ctx)
		if err != nil {
			return err
		}
		total += n
		if n == 0 {
			break
		}
	}
	log.Infof("Обработано событий outbox: %d", total)
	return nil
}

func runTradesExpire(cmd *cobra.Command, args []string) error {
	cfg, database, err := setup()
	if err != nil {
		return err
	}
	defer database.CloseDB()

	expired, err := trade.NewTradeService(cfg, database, nil).ExpireDue(contextOf(cmd))
	if err != nil {
		return err
	}
	log.Infof("Просрочено предложений: %d", expired)
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
