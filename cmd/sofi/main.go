// Command sofi is a terminal client for the Social Finance platform. It
// drives the same session, transport and API surfaces the library exposes:
// log in, browse and publish analyses, and manage subscriptions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"

	sofi "github.com/socialfinance/sofi-go"
	"github.com/socialfinance/sofi-go/client"
	"github.com/socialfinance/sofi-go/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sofi: %s\n", client.Message(err))
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage()
		return nil
	}

	cfg, err := sofi.LoadConfig()
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, cfg.Debug)

	app, err := sofi.New(cfg, log, sofi.WithMetrics(prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &cli{app: app, out: os.Stdout}
	return cli.dispatch(ctx, args[0], args[1:])
}

func usage() {
	figure.NewFigure("sofi", "cybermedium", true).Print()
	fmt.Println()
	fmt.Print(`Usage: sofi <command> [flags]

Commands:
  login       -email -password            authenticate and persist the session
  register    -username -email -password  create an account and log in
  logout                                  end the session and clear tokens
  whoami                                  show the authenticated user
  refresh                                 force a token refresh
  users                                   list users with stats
  analyses    list|show|create|delete     browse and publish analyses
  subscribe   -creator -price             subscribe to a creator
  check       -creator                    check subscription to a creator

Environment:
  SOFI_API_URL, SOFI_TOKEN_FILE, SOFI_TIMEOUT, SOFI_RATE_LIMIT, SOFI_DEBUG
`)
}
