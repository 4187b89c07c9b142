package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"go.keploy.io/testengine/cli"
	"go.keploy.io/testengine/cli/provider"
	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
	"go.keploy.io/testengine/utils/log"
	"go.uber.org/zap"
)

// version and dsn are injected during build by ldflags.
var version string
var dsn string

func main() {
	setVersion()
	ctx := utils.NewCtx()
	start(ctx)
	os.Exit(utils.ErrCode)
}

func setVersion() {
	if version == "" {
		version = "1-dev"
	}
	utils.Version = version
}

func start(ctx context.Context) {
	logFile := os.Getenv(provider.EnvPrefix + "_LOGFILE")
	if logFile != "" {
		utils.LogFile = logFile
	}
	logger, err := log.New(logFile)
	if err != nil {
		fmt.Println("Failed to start the logger for the CLI", err)
		utils.ErrCode = 1
		return
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          version,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		logger.Debug("could not initialise sentry", zap.Error(err))
	}
	defer sentry.Flush(2 * time.Second)
	defer utils.HandlePanic()

	conf := config.New()
	svcProvider := provider.NewServiceProvider(logger, conf)
	cmdConfigurator := provider.NewCmdConfigurator(logger, conf)
	rootCmd := cli.Root(ctx, logger, conf, svcProvider, cmdConfigurator)
	if rootCmd == nil {
		utils.ErrCode = 1
		return
	}
	if err := rootCmd.Execute(); err != nil {
		utils.ErrCode = 1
		var appErr models.AppError
		switch {
		case errors.As(err, &appErr):
			logger.Info(string(appErr.AppErrorType))
		case strings.HasPrefix(err.Error(), "unknown command") || strings.HasPrefix(err.Error(), "unknown shorthand") || strings.HasPrefix(err.Error(), "unknown flag"):
			fmt.Println("Error: ", err.Error())
			fmt.Println("Run 'testengine --help' for usage.")
		case ctx.Err() != nil:
			logger.Info(string(models.ErrInterrupted))
		default:
			utils.LogError(logger, err, string(models.ErrCommandError))
		}
	}
}
