package main

import (
	"flag"

	"github.com/rlopes/wview/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configPath := flag.String("config", "wview.toml", "path to config file")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configPath}),
	)

	app.Run()
}
