package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikelcalvo/distributor-cli/internal/erp"
	"github.com/mikelcalvo/distributor-cli/internal/tui"
	"github.com/sirupsen/logrus"
)

func main() {
	cmd := "tui"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	// Help doesn't need config
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		os.Exit(0)
	}

	if cmd == "version" || cmd == "-v" || cmd == "--version" {
		fmt.Printf("Distributor CLI v%s\n", erp.Version)
		fmt.Printf("Created by %s in %s\n", erp.Author, erp.Year)
		os.Exit(0)
	}

	if err := run(cmd, os.Args[min(2, len(os.Args)):]); err != nil {
		fmt.Printf("%sError: %s%s\n", erp.Red, err, erp.Reset)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	config, err := erp.LoadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := erp.NewLogger(config)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := erp.NewClient(config)
	client.Log = logger

	if config.MetricsAddr != "" {
		client.Metrics = erp.NewMetrics()
		srv := erp.NewMetricsServer(config.MetricsAddr, client.Metrics)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				erp.LogError(logger, "main", "run", "metrics server", config.MetricsAddr, err)
			}
		}()
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
	}

	// ping and config detect the connection themselves
	if cmd != "ping" && cmd != "config" {
		client.DetectConnection(ctx)
	}
	logger.WithFields(logrus.Fields{
		"command": cmd,
		"mode":    client.Mode,
		"url":     client.ActiveURL,
	}).Info("starting")

	switch cmd {
	case "tui":
		return tui.RunTUI(ctx, client)
	case "ping":
		return client.CmdPing(ctx)
	case "config":
		return client.CmdConfig(ctx)
	case "stock":
		return client.CmdStock(ctx, args)
	case "batches":
		return client.CmdBatches(ctx, args)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage() {
	fmt.Printf(`%sDistributor CLI%s - Created by %s in %s

Usage: erp-cli <command> [args...]

%sCommands:%s

  %stui%s                               Open the transaction editor (default)
  %sping%s                              Test connection and authentication
  %sconfig%s                            Show current configuration
  %sversion%s                           Show version information

%sStock:%s
  %sstock <warehouse>%s                 Show a warehouse's stock and selling units
  %sbatches <wh> <item> <uom> <qty> <expiry>%s
                                      List batches that can cover a return line

%sTransaction editor keys:%s
  a add line • d delete line • i item • u unit • enter quantity • p price
  w warehouse • c customer • o date • n note • f delivery reference
  e expiry • t return type • r return reason (returns)
  s submit • x export XLSX • m import XLSX • esc back

%sExamples:%s
  erp-cli ping
  erp-cli stock WH-01
  erp-cli batches WH-01 ITEM-7 PC 12 2026-06-30

`,
		erp.Blue, erp.Reset, erp.Author, erp.Year,
		erp.Yellow, erp.Reset,
		erp.Green, erp.Reset, erp.Green, erp.Reset, erp.Green, erp.Reset, erp.Green, erp.Reset,
		erp.Yellow, erp.Reset,
		erp.Green, erp.Reset, erp.Green, erp.Reset,
		erp.Yellow, erp.Reset,
		erp.Yellow, erp.Reset,
	)
}
