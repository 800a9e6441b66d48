package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Server   ServerCmd        `cmd:"" help:"Run the blackjack server"`
	Play     PlayCmd          `cmd:"" help:"Play interactively in the terminal"`
	Bot      BotCmd           `cmd:"" help:"Play rounds against a server with a built-in strategy"`
	Spawn    SpawnCmd         `cmd:"" help:"Run a fleet of bot processes against a server"`
	Simulate SimulateCmd      `cmd:"" help:"Simulate a strategy locally and report its house edge"`
	History  HistoryCmd       `cmd:"" help:"Show game records and rankings from a database"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blackjack"),
		kong.Description("Server-authoritative blackjack with a terminal client and bots"),
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
