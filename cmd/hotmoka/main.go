// Command hotmoka runs a local node daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/omahs/hotmoka/kv"
	"github.com/omahs/hotmoka/log"
	"github.com/omahs/hotmoka/node"
)

func main() {
	app := &cli.App{
		Name:  "hotmoka",
		Usage: "deterministic smart-contract node",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create a store with the genesis state and exit",
				Flags: commonFlags(),
				Action: func(c *cli.Context) error {
					cfg, n, err := openNode(c)
					if err != nil {
						return err
					}
					defer n.Close()

					initialized, err := node.Initialize(n, cfg)
					if err != nil {
						return err
					}
					fmt.Printf("takamaka code: %s\n", initialized.TakamakaCodeRef)
					fmt.Printf("gamete:        %s\n", initialized.Gamete)
					fmt.Printf("manifest:      %s\n", initialized.ManifestRef)
					return nil
				},
			},
			{
				Name:  "run",
				Usage: "serve an existing store until interrupted",
				Flags: commonFlags(),
				Action: func(c *cli.Context) error {
					_, n, err := openNode(c)
					if err != nil {
						return err
					}
					defer n.Close()

					takamaka, err := n.TakamakaCode()
					if err != nil {
						return err
					}
					log.Printkv(context.Background(), "message", "node running", "takamakaCode", takamaka)

					stop := make(chan os.Signal, 1)
					signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
					<-stop
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "configuration file"},
		&cli.StringFlag{Name: "dir", Value: "hotmoka-store", Usage: "directory of the node store"},
		&cli.StringFlag{Name: "chain-id", Usage: "chain identifier"},
		&cli.StringFlag{Name: "signature", Value: "ed25519", Usage: "signature algorithm to accept"},
	}
}

// openNode loads the configuration and opens the local node over its
// leveldb store.
func openNode(c *cli.Context) (*node.Config, node.Node, error) {
	fs := pflag.NewFlagSet("hotmoka", pflag.ContinueOnError)
	node.Flags(fs)
	if c.IsSet("dir") {
		fs.Set("dir", c.String("dir"))
	}
	if c.IsSet("chain-id") {
		fs.Set("chain-id", c.String("chain-id"))
	}
	if c.IsSet("signature") {
		fs.Set("signature", c.String("signature"))
	}
	cfg, err := node.Load(fs, c.String("config"))
	if err != nil {
		return nil, nil, err
	}

	db, err := kv.OpenLevelDB(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	n, err := node.OpenLocal(cfg, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return cfg, n, nil
}
