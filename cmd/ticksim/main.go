package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ticksim: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ticksim"
	app.HelpName = "ticksim"
	app.Usage = "drive a tick scheduler from a fixed-interval host loop"
	app.UsageText = "ticksim <command> [arguments...]"
	app.Version = version
	app.Commands = []cli.Command{
		{
			Name:                   "run",
			Aliases:                []string{"r"},
			Usage:                  "run the demo simulation",
			Action:                 run,
			Flags:                  runFlags,
			UseShortOptionHandling: true,
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "prints the version",
			Action: func(ctx *cli.Context) error {
				fmt.Printf("%s version %s\n", ctx.App.Name, ctx.App.Version)
				return nil
			},
		},
	}
	return app
}

func printRuntimeErr(ctx *cli.Context, cmd, action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s[%s]: %s\n", ctx.App.HelpName, cmd, action, err.Error())
}
