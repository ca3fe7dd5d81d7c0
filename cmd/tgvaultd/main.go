package main

import (
	"flag"

	"go.uber.org/fx"

	"github.com/matheus3301/tgvault/internal/daemon"
	"github.com/matheus3301/tgvault/internal/paths"
)

func main() {
	configFlag := flag.String("config", paths.ConfigPath(), "path to config file")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag}),
	)

	app.Run()
}
