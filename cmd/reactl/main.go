// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// reactl talks to a host listener from the command line, or runs one.
//
//	reactl ping
//	reactl call CountTracks @project
//	reactl tracks
//	reactl serve --lua ops.lua
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/config"
	"github.com/reabridge/rpc/handle"
	"github.com/reabridge/rpc/host"
	"github.com/reabridge/rpc/host/luahost"
	"github.com/reabridge/rpc/internal/hostsim"
	"github.com/reabridge/rpc/reaper"
)

// errUsage marks command line mistakes; main exits with status 2 for them.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "reactl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	address    string
	port       int
	transport  string
	timeout    float64
	retries    int
	logLevel   string
}

func (g *globals) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "config file (.yaml, .yml, .json or .jsonc)")
	fs.StringVar(&g.address, "address", "", "host address")
	fs.IntVar(&g.port, "port", 0, "host port")
	fs.StringVar(&g.transport, "transport", "", "transport: "+strings.Join(rpc.AvailableTransports(), ", "))
	fs.Float64Var(&g.timeout, "timeout", 0, "per-call timeout in seconds")
	fs.IntVar(&g.retries, "retries", 0, "connect attempts")
	fs.StringVar(&g.logLevel, "log-level", "warn", "debug, info, warn or error")
}

// config loads the file, if any, and applies flags that were set.
func (g *globals) config(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(g.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if fs.Changed("address") {
		cfg.Address = g.address
	}
	if fs.Changed("port") {
		cfg.Port = g.port
	}
	if fs.Changed("transport") {
		cfg.Transport = g.transport
	}
	if fs.Changed("timeout") {
		cfg.TimeoutSeconds = g.timeout
	}
	if fs.Changed("retries") {
		cfg.ConnectRetries = g.retries
	}
	return cfg, cfg.Validate()
}

func (g *globals) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("%w: --log-level: %v", errUsage, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func run(args []string, out io.Writer) error {
	var g globals
	fs := pflag.NewFlagSet("reactl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	g.addFlags(fs)
	fs.Usage = func() { printHelp(fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		printHelp(fs)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cfg, err := g.config(fs)
	if err != nil {
		return err
	}
	logger, err := g.logger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger, rest)
	case "ping", "call", "tracks":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	b, err := reaper.Connect(cfg, rpc.WithLogger(logger))
	if err != nil {
		return err
	}
	defer b.Close()

	switch cmd {
	case "ping":
		return ping(ctx, b, cfg, out)
	case "call":
		return callOp(ctx, b, rest, out)
	default:
		return listTracks(ctx, b, out)
	}
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `reactl - talk to a host listener, or run one.

Usage:
  reactl [flags] ping
  reactl [flags] call <op> [json-arg...]
  reactl [flags] tracks
  reactl [flags] serve [--lua script]

Arguments to call are JSON values; @project stands for the current project.

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}

func ping(ctx context.Context, b *rpc.Bridge, cfg config.Config, out io.Writer) error {
	if !b.Ping(ctx) {
		return fmt.Errorf("%w: no answer from %s over %s", rpc.ErrHostUnavailable, cfg.Addr(), cfg.Transport)
	}
	fmt.Fprintf(out, "ok %s (%s)\n", cfg.Addr(), cfg.Transport)
	return nil
}

func callOp(ctx context.Context, b *rpc.Bridge, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: call needs an operation name", errUsage)
	}
	op := args[0]
	values := make([]any, 0, len(args)-1)
	for _, raw := range args[1:] {
		if raw == "@project" {
			p, err := reaper.CurrentProject(ctx, b)
			if err != nil {
				return err
			}
			values = append(values, p.Handle())
			continue
		}
		v, err := parseArg(raw)
		if err != nil {
			return fmt.Errorf("%w: argument %q: %v", errUsage, raw, err)
		}
		values = append(values, v)
	}

	result, err := b.Call(ctx, op, values, nil)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(printable(result))
}

// parseArg decodes one JSON argument. Integral numbers stay integers.
func parseArg(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return fromJSON(v), nil
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = fromJSON(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = fromJSON(x[k])
		}
	}
	return v
}

// printable replaces handles with their string form for JSON output.
func printable(v any) any {
	switch x := v.(type) {
	case handle.Handle:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = printable(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = printable(e)
		}
		return out
	}
	return v
}

func listTracks(ctx context.Context, b *rpc.Bridge, out io.Writer) error {
	p, err := reaper.CurrentProject(ctx, b)
	if err != nil {
		return err
	}
	tracks, err := p.Tracks(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tID")
	for i, t := range tracks {
		name, err := t.Name(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, name, t.Handle().ID())
	}
	return w.Flush()
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	script := fs.String("lua", "", "serve the global functions of this Lua script instead of the simulated host")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var interp host.Interpreter
	if *script != "" {
		lh := luahost.New(luahost.WithLogger(logger))
		defer lh.Close()
		if err := lh.DoFile(*script); err != nil {
			return fmt.Errorf("loading %s: %w", *script, err)
		}
		interp = lh
	} else {
		interp = hostsim.New()
	}

	srv := host.NewServer(interp, host.WithLogger(logger))
	defer srv.Close()

	listener, err := rpc.Listen(cfg.Addr(),
		rpc.WithServerTransport(cfg.Transport),
		rpc.WithServerCompression(cfg.CompressThreshold))
	if err != nil {
		return err
	}
	defer listener.Close()
	if err := srv.Register(listener); err != nil {
		return err
	}

	logger.Info("serving", "addr", listener.Addr(), "transport", cfg.Transport, "lua", *script)
	if err := listener.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
