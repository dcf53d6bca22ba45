// Command filehub is the process entrypoint: flag parsing, banner
// printing, config loading, hub construction and Run, grounded on
// cmd/leapmux/hub.go and cmd/leapmux/main.go. The broker's multi-
// process backend re-execs this same binary with WorkerEnvVar set;
// main checks for that before doing anything else.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clach04/copyparty/internal/broker"
	"github.com/clach04/copyparty/internal/collab"
	"github.com/clach04/copyparty/internal/config"
	"github.com/clach04/copyparty/internal/logging"
	"github.com/clach04/copyparty/internal/logsink"
	"github.com/clach04/copyparty/internal/svchub"
	"github.com/clach04/copyparty/internal/u2idx"
)

var version = "dev"

func main() {
	if os.Getenv(broker.WorkerEnvVar) != "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := broker.ServeWorker(ctx, broker.Registry{}); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("filehub", flag.ExitOnError)
	cfgPath := fs.String("c", "", "path to the yaml config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	raw, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	cfg, warnings, err := config.Normalize(raw)
	if err != nil {
		return err
	}

	sink, err := logsink.New(logsink.Config{
		Template: cfg.LogTemplate,
		Disabled: cfg.Q,
	})
	if err != nil {
		return err
	}
	logging.Setup(sink)

	if !cfg.Q {
		logging.PrintBanner(version, "")
	}

	auth := &collab.StubAuthRegistry{}
	idx := u2idx.New(u2idx.Config{
		Salt:     cfg.Raw.Salt,
		FkSalt:   cfg.Raw.FkSalt,
		SrchTime: time.Duration(cfg.Raw.SrchTime) * time.Second,
		SrchHits: cfg.Raw.SrchHits,
	}, auth, sink.Log)

	binPath, err := os.Executable()
	if err != nil {
		binPath = ""
	}

	deps := svchub.Deps{
		Auth:  auth,
		Up2k:  &collab.StubUp2k{},
		Thumb: &collab.StubThumbSrv{},
		Ftp:   &collab.StubAdapter{IsPresent: cfg.Raw.FtpEnabled},
		Smb:   &collab.StubAdapter{IsPresent: cfg.Raw.SmbEnabled},
		Idx:   idx,

		BrokerRegistry: broker.Registry{},
		BinPath:        binPath,
		NSrv:           1,
	}

	hub, err := svchub.New(cfg, warnings, deps, sink, sink.Log)
	if err != nil {
		return err
	}

	hub.SdNotify()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retcode := hub.Run(ctx)
	os.Exit(retcode)
	return nil
}
