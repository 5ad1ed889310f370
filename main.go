package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/app"
	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/utils"
)

func main() {
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	configPath := flag.String("config", "", "Path to the scratch card tunables (YAML)")
	envFile := flag.String("env", ".env", "dotenv file with the ledger settings")
	flag.Parse()

	logger, err := utils.NewConsoleLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}

	wallet, err := app.NewApp(app.Config{
		Verbose:           *verbose,
		ScratchConfigPath: *configPath,
		EnvFile:           *envFile,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal("failed to start wallet", zap.Error(err))
	}
	defer wallet.Close()

	ebiten.SetWindowSize(config.WindowWidth, config.WindowHeight)
	ebiten.SetWindowSizeLimits(config.MinWindowWidth, config.MinWindowHeight, -1, -1)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowTitle(config.WindowTitle)

	if err := ebiten.RunGame(wallet); err != nil {
		logger.Error("game loop exited", zap.Error(err))
	}
}
