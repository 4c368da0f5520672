/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/spaghettifunk/reverie/engine"
	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/testbed"
)

func init() {
	// post-construction hooks and main thread loaders must stay on one OS thread
	runtime.LockOSThread()
}

func main() {
	root := &cli.Command{
		Name:  "reverie",
		Usage: "Run the resource testbed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "reverie.toml", Usage: "TOML configuration file"},
			&cli.StringSliceFlag{Name: "assets", Usage: "extra asset search directories"},
			&cli.StringFlag{Name: "save", Usage: "restore and save the resource cache to this file"},
			&cli.StringFlag{Name: "debug-addr", Usage: "resource inspector address, overrides the config"},
			&cli.DurationFlag{Name: "duration", Usage: "quit after this long (0 runs until interrupted)"},
		},
		Action: run,
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		core.LogFatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	config, err := engine.LoadApplicationConfig(cmd.String("config"))
	if errors.Is(err, os.ErrNotExist) {
		core.LogWarn("%s not found, using the default configuration", cmd.String("config"))
		config, err = engine.DefaultApplicationConfig(), nil
	}
	if err != nil {
		return err
	}
	config.Resources.SearchPaths = append(config.Resources.SearchPaths, cmd.StringSlice("assets")...)
	if save := cmd.String("save"); save != "" {
		config.Resources.SaveFile = save
	}
	if cmd.IsSet("debug-addr") {
		config.DebugAddr = cmd.String("debug-addr")
	}

	e, err := engine.New(testbed.NewTestGame(config).Game)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}

	// capture sigterm and other system calls here
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()
	if d := cmd.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	runErr := e.Run(ctx)
	core.LogInfo("engine ran for %s", time.Since(start).Round(time.Millisecond))
	return errors.Join(runErr, e.Shutdown())
}
