package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ordishs/gocore"
	"github.com/triton-chain/triton/chaincfg"
	"github.com/triton-chain/triton/daemon"
	"github.com/triton-chain/triton/settings"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "triton"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	app := &cli.App{
		Name:    progname,
		Usage:   "triton consensus node",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "network",
				Usage: "chain network to run on (mainnet, testnet, regtest)",
			},
			&cli.StringFlag{
				Name:  "datadir",
				Usage: "data directory for the archival store",
			},
			&cli.StringFlag{
				Name:  "metrics",
				Usage: "listen address for prometheus metrics and pprof",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	tSettings := settings.NewSettings()

	if network := c.String("network"); network != "" {
		params, err := chaincfg.GetChainParams(network)
		if err != nil {
			return err
		}

		tSettings.ChainCfgParams = params
	}

	if dataDir := c.String("datadir"); dataDir != "" {
		tSettings.DataFolder = dataDir
		tSettings.Archive.StorePath = filepath.Join(dataDir, "archive")
	}

	if c.IsSet("metrics") {
		tSettings.MetricsListenAddress = c.String("metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(tSettings)

	if err := d.Start(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gCtx.Done()

		return d.Stop(context.Background())
	})

	return g.Wait()
}
