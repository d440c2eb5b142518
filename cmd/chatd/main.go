package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/wiretalk/chatline/internal/chatserver"
	"github.com/wiretalk/chatline/internal/metrics"
)

func main() {
	app := cli.NewApp()
	app.Name = "chatd"
	app.Usage = "run the chatline chat server"
	app.ArgsUsage = "<port>"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "bind",
			Value: "",
			Usage: "interface to bind (empty for all interfaces)",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Value: "",
			Usage: "if set, serve Prometheus metrics on this address (e.g. :9090)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("chatd: %v", err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: %s [options] <port>", c.App.Name), 1)
	}
	port := c.Args().Get(0)
	addr := c.String("bind") + ":" + port

	server, err := chatserver.NewServer(addr)
	if err != nil {
		return cli.Exit(fmt.Sprintf("chatd: %v", err), 1)
	}
	logrus.Infof("chatd: listening on %s", server.Addr())

	if metricsAddr := c.String("metrics-addr"); metricsAddr != "" {
		serveMetrics(server, metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logrus.Info("chatd: shutting down")
		cancel()
	}()

	if err := server.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("chatd: %v", err), 1)
	}
	return nil
}

func serveMetrics(server *chatserver.Server, addr string) {
	collector := metrics.NewCollector(server)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		logrus.Infof("chatd: serving metrics on %s (instance %s)", addr, collector.InstanceID())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logrus.Errorf("chatd: metrics server stopped: %v", err)
		}
	}()
}
