package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Serve   ServeCmd         `cmd:"" help:"Run the dexbot WebSocket server"`
	Lookup  LookupCmd        `cmd:"" help:"Look up competitive data from the command line"`
	Cache   CacheCmd         `cmd:"" help:"Inspect and maintain the response cache"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("dexbot"),
		kong.Description("Competitive Pokemon lookups and table blackjack over WebSocket"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
