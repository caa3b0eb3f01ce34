package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "CLI : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// Ctrl-C stops a run between two records
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := newCommandLine(conf, logger, os.Stdout)
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintln(os.Stderr, cli.printer.failure("error: "+err.Error()))
		}
		stop()
		os.Exit(1)
	}
}
