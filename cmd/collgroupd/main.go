// Command collgroupd starts one peer of a collective-communication
// process group against a rendezvous store and runs a short demo
// collective so an operator can verify connectivity end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tao-jia/collgroup/group"
	"github.com/tao-jia/collgroup/group/tensor"
	"github.com/tao-jia/collgroup/internal/xlog"
	"github.com/tao-jia/collgroup/rendezvous"
	"github.com/tao-jia/collgroup/transport"
)

var log = xlog.New("component", "cmd/collgroupd")

func main() {
	app := &cli.App{
		Name:  "collgroupd",
		Usage: "run one peer of a collective-communication process group",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "rank", Required: true, Usage: "this peer's rank in [0,size)"},
			&cli.IntFlag{Name: "size", Required: true, Usage: "total peer count"},
			&cli.StringFlag{Name: "store-addr", Value: "127.0.0.1:7777", Usage: "rendezvous HTTP store address"},
			&cli.BoolFlag{Name: "serve-store", Usage: "also serve the rendezvous store on store-addr (run once, on rank 0)"},
			&cli.StringFlag{Name: "store-db", Value: "collgroupd-store.db", Usage: "buntdb file backing the served rendezvous store"},
			&cli.StringFlag{Name: "listen-host", Value: "127.0.0.1", Usage: "interface this peer listens on for fullmesh"},
			&cli.IntFlag{Name: "threads", Value: 2, Usage: "worker pool size"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "rendezvous and collective timeout"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("verbose") {
		xlog.SetDefault(xlog.NewLogger(xlog.NewTerminalHandlerWithLevel(os.Stderr, xlog.LevelDebug, false)))
	}

	rank := c.Int("rank")
	size := c.Int("size")
	storeAddr := c.String("store-addr")

	if c.Bool("serve-store") {
		srv, err := rendezvous.NewHTTPServer(c.String("store-db"))
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ListenAndServe(storeAddr); err != nil {
				log.Error("rendezvous store exited", "err", err)
			}
		}()
		defer srv.Close()
		log.Info("serving rendezvous store", "addr", storeAddr)
	}

	store := rendezvous.NewHTTPStore(storeAddr)

	opts := group.DefaultOptions()
	opts.Devices = []transport.Device{{ListenHost: c.String("listen-host")}}
	opts.Threads = c.Int("threads")
	opts.TimeoutMS = int(c.Duration("timeout") / time.Millisecond)

	ctx := context.Background()
	g, err := group.New(ctx, store, rank, size, opts)
	if err != nil {
		return err
	}
	defer g.Close()

	log.Info("connected", "rank", rank, "size", size)

	buf := tensor.NewFromFloat32(float32(rank))
	handle, err := g.AllReduce([]*tensor.Buffer{buf}, tensor.SUM)
	if err != nil {
		return err
	}
	if err := handle.Wait(); err != nil {
		return err
	}
	handle.Synchronize()

	log.Info("demo allreduce complete", "result", buf.GetFloat32(0))
	return nil
}
