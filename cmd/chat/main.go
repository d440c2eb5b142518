package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/wiretalk/chatline/internal/chatclient"
	"github.com/wiretalk/chatline/internal/chatserver"
	"github.com/wiretalk/chatline/internal/ui"
)

func main() {
	app := cli.NewApp()
	app.Name = "chat"
	app.Usage = "a typed, length-framed binary chat client and server"
	app.UsageText = "chat [-h] [-s] [-u <host>] <port>"
	app.ArgsUsage = "<port>"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "s",
			Usage: "run as server (default is client)",
		},
		&cli.StringFlag{
			Name:  "u",
			Value: "localhost",
			Usage: "client connect host",
		},
	}
	app.Action = run
	// cli.Exit(_, 0) on -h/--help is handled by urfave/cli itself before
	// app.Action runs.

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			logrus.Error(exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		logrus.Fatalf("chat: %v", err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: %s", c.App.UsageText), -1)
	}
	port := c.Args().Get(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if c.Bool("s") {
		return runServer(ctx, port)
	}
	return runClient(ctx, c.String("u"), port)
}

func runServer(ctx context.Context, port string) error {
	server, err := chatserver.NewServer(":" + port)
	if err != nil {
		return cli.Exit(fmt.Sprintf("chatd: %v", err), -1)
	}
	logrus.Infof("chat: listening on %s", server.Addr())

	if err := server.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("chat: %v", err), -1)
	}
	return nil
}

func runClient(ctx context.Context, host, port string) error {
	console := ui.NewConsole()
	client, err := chatclient.Start(host, port, console)
	if err != nil {
		return cli.Exit(fmt.Sprintf("chat: %v", err), -1)
	}
	defer client.Shutdown()
	logrus.Infof("chat: connected as user %d", client.SelfID())

	lines := make(chan string)
	go readLines(ctx, os.Stdin, lines)

	if err := client.Run(ctx, lines); err != nil {
		return cli.Exit(fmt.Sprintf("chat: %v", err), -1)
	}
	return nil
}

func readLines(ctx context.Context, f *os.File, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case out <- scanner.Text():
		}
	}
}
