// canvas-cli is a headless participant for a go-canvas server.
//
//	canvas-cli export --server ws://localhost:8080/ws --room art --out art.json
//	canvas-cli import --server ws://localhost:8080/ws --room copy --in art.json
//	canvas-cli render --in art.json --out art.png
//	canvas-cli draw   --server ws://localhost:8080/ws --room art
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/a-essam23/go-canvas/pkg/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type command struct {
	name  string
	usage string
	flags func(fs *pflag.FlagSet)
	run   func(ctx context.Context, v *viper.Viper, logger *slog.Logger) error
}

var commands = []command{
	{"export", "write a room's current history to a file", exportFlags, runExport},
	{"import", "replace a room's canvas view with a file and commit its operations", importFlags, runImport},
	{"render", "rasterize an export file to PNG", renderFlags, runRender},
	{"draw", "join a room and draw a demo stroke and shape", drawFlags, runDraw},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: canvas-cli <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == os.Args[1] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		os.Exit(2)
	}

	fs := pflag.NewFlagSet(cmd.name, pflag.ExitOnError)
	fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	cmd.flags(fs)
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	v := viper.New()
	v.SetEnvPrefix("GOCANVAS_CLI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.NewWithWriter(os.Stderr, level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.run(ctx, v, logger); err != nil {
		logger.Error("Command failed", slog.String("command", cmd.name), slog.Any("error", err))
		os.Exit(1)
	}
}
