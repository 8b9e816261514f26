package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/engine"
	"uniqsocial/client/internal/localization"
	"uniqsocial/client/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	pflag.StringVar(&cfg.TelegramBotToken, "token", cfg.TelegramBotToken, "Telegram bot token")
	pflag.StringVar(&cfg.Language, "lang", cfg.Language, "fallback language (en, uk)")
	pflag.Parse()

	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("Failed to start the Telegram bot: %v", err)
	}
	log.Printf("INFO: Authorized on account %s", bot.Self.UserName)

	localizer, err := localization.NewLocalizer()
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	stores, err := engine.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer stores.Close()

	service := telegram.NewBotService(bot, localizer, func(chatID int64) *engine.Engine {
		return engine.New(cfg, stores.For(fmt.Sprintf("tg:%d", chatID)), clock.Real())
	}, cfg.Language)
	defer service.Close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	service.Run(ctx, updates)
	log.Println("INFO: bot stopped")
}
