// Package main implements the mail transport the MTA pipes each message into.
// It reads the raw message from stdin, finds the site registered for the
// recipient domain and posts the message to it, or hands the delivery to mptd
// when a relay address is configured.
//
// Example postfix master.cf entry:
//
//	mpt unix - n n - - pipe flags=R user=nobody argv=/usr/local/bin/mpt ${recipient}
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/DavidGamba/go-getoptions"
	"github.com/LixenWraith/logger"
	"github.com/google/uuid"

	"mailpostbridge/internal/address"
	"mailpostbridge/internal/config"
	"mailpostbridge/internal/exitcode"
	"mailpostbridge/internal/logging"
	"mailpostbridge/internal/poster"
	"mailpostbridge/internal/registry"
	"mailpostbridge/internal/relay"
	"mailpostbridge/internal/transport"
)

const appName = "mpt"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var configPath string

	opt := getoptions.New()
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&configPath, "config", "", opt.Alias("c"),
		opt.Description("config file (default "+config.DefaultPath(appName)+")"))

	remaining, err := opt.Parse(args)
	if opt.Called("help") {
		fmt.Fprintf(stdout, "usage: %s [-c config.toml] <local>@<domain>\n\n%s", appName, opt.Help())
		return exitcode.OK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing arguments: %v\n", err)
		return exitcode.Usage
	}
	if len(remaining) != 1 {
		fmt.Fprintf(stderr, "usage: %s [-c config.toml] <local>@<domain>\n", appName)
		return exitcode.Usage
	}
	recipient := remaining[0]
	if _, err := address.Parse(recipient); err != nil {
		fmt.Fprintf(stderr, "Delivery failed: %v\n", err)
		return exitcode.Usage
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, _, err = config.LoadFile(configPath, appName)
	} else {
		cfg, _, err = config.Load(appName)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitcode.Config
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An unwritable log directory must not fail the delivery
	var log logging.Logger = logging.Std{}
	if err := logger.Init(ctx, &cfg.Logging); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger, logging to stderr: %v\n", err)
		log = logging.NewText(stderr)
	} else {
		defer logger.Shutdown(ctx)
	}

	raw, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading message: %v\n", err)
		log.Error(ctx, "Failed to read message from stdin", "error", err.Error())
		return exitcode.IOError
	}

	id := uuid.NewString()
	log.Debug(ctx, "Delivery started", "id", id, "recipient", recipient, "size", len(raw))

	if cfg.Transport.RelayAddr != "" {
		return viaRelay(ctx, cfg, log, id, recipient, raw, stdout, stderr)
	}

	reg, err := registry.Load(cfg.Transport.RegistryFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load site registry: %v\n", err)
		log.Error(ctx, "Failed to load site registry", "path", cfg.Transport.RegistryFile, "error", err.Error())
		return exitcode.Config
	}

	inv := transport.NewInvoker(reg, poster.New(cfg.PosterConfig()), log)
	res := transport.Run(ctx, inv, transport.ExitPolicy(cfg.Transport.ExitPolicy), id, recipient, raw)
	return report(res.ExitCode, res.Diagnostic, res.Err, stdout, stderr)
}

// viaRelay hands the delivery to mptd and adopts its verdict.
func viaRelay(ctx context.Context, cfg *config.Config, log logging.Logger, id, recipient string, raw []byte, stdout, stderr io.Writer) int {
	client := &relay.Client{
		Addr:        cfg.Transport.RelayAddr,
		DialTimeout: cfg.Transport.DialTimeout,
		Timeout:     cfg.Server.Timeout,
	}

	resp, err := client.Send(ctx, relay.Request{ID: id, Recipient: recipient, Message: raw})
	if err != nil {
		fmt.Fprintf(stderr, "Error handing message to mptd: %v\n", err)
		log.Error(ctx, "Relay failed", "id", id, "relay_addr", client.Addr, "error", err.Error())
		return exitcode.TempFail
	}

	var derr error
	if resp.Error != "" {
		derr = fmt.Errorf("%s", resp.Error)
	}
	return report(resp.ExitCode, resp.Diagnostic, derr, stdout, stderr)
}

// report prints what the MTA should capture and returns the exit code.
func report(code int, diagnostic string, err error, stdout, stderr io.Writer) int {
	if diagnostic != "" {
		fmt.Fprintln(stdout, diagnostic)
	}
	if err != nil && code != exitcode.OK {
		fmt.Fprintf(stderr, "Delivery failed: %v\n", err)
	}
	return code
}
