package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentrabot/sentra/internal/bot"
	"github.com/sentrabot/sentra/internal/engine"
	"github.com/sentrabot/sentra/internal/setup"
)

func main() {
	app, err := setup.InitializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.CleanupApp()

	actions := bot.NewActions(app.Logger)

	eng := engine.New(engine.Config{
		MatchDeadline: time.Duration(app.Config.Engine.MatchDeadline) * time.Millisecond,
		RulesPath:     app.Config.Engine.RulesFile,
		StatsPath:     app.Config.Engine.StatsFile,
	}, actions, app.Logger)
	eng.Load()

	discordBot, err := bot.New(app.Config, eng, actions, app.Logger)
	if err != nil {
		log.Printf("Failed to create bot: %v", err)
		return
	}

	if err := discordBot.Start(); err != nil {
		log.Printf("Failed to start bot: %v", err)
		return
	}

	log.Println("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	discordBot.Close()
	eng.Close()
}
