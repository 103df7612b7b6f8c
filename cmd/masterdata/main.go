package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/windregistry/masterdata/internal/cli"
	"github.com/windregistry/masterdata/pkg/configuration"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			os.Exit(cli.ExitFailure)
		}
	}()

	conf := configuration.Use()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.NewRuntime(conf), os.Args[1:])
	stop()
	conf.Unload()
	os.Exit(code)
}
