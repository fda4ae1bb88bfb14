// Command lanshare discovers peers on the local network and exchanges single
// files with them.
//
//	lanshare listen
//	lanshare discover
//	lanshare send [-peer addr | -index n] [-password p] file
//	lanshare receive [-dir d] [-password p]
//	lanshare serve [-addr :8080] file
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lanshare/lanshare/lanshare"
	"github.com/lanshare/lanshare/lanshare/protocol"
	"github.com/lanshare/lanshare/lanshare/transfer"
	"github.com/lanshare/lanshare/lanshare/weblink"
)

const usage = `usage: lanshare <command> [flags]

commands:
  listen     answer discovery requests until interrupted
  discover   list peers answering on the local network
  send       send a file to a peer
  receive    wait for one file and save it
  serve      share a file over HTTP
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "listen":
		err = runListen(ctx, args)
	case "discover":
		err = runDiscover(ctx, args)
	case "send":
		err = runSend(ctx, args)
	case "receive":
		err = runReceive(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "lanshare: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "lanshare: %s\n", describe(err))
		os.Exit(1)
	}
}

type targets []string

func (t *targets) String() string     { return strings.Join(*t, ",") }
func (t *targets) Set(v string) error { *t = append(*t, v); return nil }

// common holds the flags every network command accepts.
type common struct {
	verbose       bool
	transferPort  int
	discoveryPort int
	transport     string
	compress      bool
	targets       targets
}

func (c *common) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
	fs.IntVar(&c.transferPort, "transfer-port", protocol.TransferPort, "TCP/QUIC transfer port")
	fs.IntVar(&c.discoveryPort, "discovery-port", protocol.DiscoveryPort, "UDP discovery port")
	fs.StringVar(&c.transport, "transport", "tcp", "transfer transport: tcp or quic")
	fs.BoolVar(&c.compress, "compress", false, "LZ4-compress outgoing payloads")
	fs.Var(&c.targets, "target", "extra unicast discovery target (repeatable)")
}

func (c *common) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func (c *common) node() (*lanshare.Node, *slog.Logger, error) {
	logger := c.logger()
	cfg := lanshare.DefaultConfig()
	cfg.TransferPort = c.transferPort
	cfg.DiscoveryPort = c.discoveryPort
	cfg.Transport = c.transport
	cfg.Compress = c.compress
	cfg.Targets = c.targets
	cfg.Logger = logger
	cfg.OnProgress = func(p transfer.Progress) {
		logger.Debug("progress", "file", p.Filename, "bytes", p.Bytes, "total", p.Total, "percent", p.Percent)
	}
	n, err := lanshare.NewNode(cfg)
	return n, logger, err
}

func runListen(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, logger, err := c.node()
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}
	defer n.Close()
	if !n.Listening() {
		return errors.New("discovery port is held by another process")
	}
	logger.Info("answering discovery requests", "port", c.discoveryPort)
	<-ctx.Done()
	return nil
}

func runDiscover(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, _, err := c.node()
	if err != nil {
		return err
	}
	peers, err := n.NewSession().Discover(ctx)
	if err != nil {
		return err
	}
	printPeers(peers)
	return nil
}

func printPeers(peers []string) {
	if len(peers) == 0 {
		fmt.Println("no peers found")
		return
	}
	for i, p := range peers {
		fmt.Printf("%d. %s\n", i+1, p)
	}
}

func runSend(ctx context.Context, args []string) error {
	var (
		c        common
		peer     string
		index    int
		password string
	)
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	c.register(fs)
	fs.StringVar(&peer, "peer", "", "peer address; discovered when empty")
	fs.IntVar(&index, "index", 1, "which discovered peer to use (1-based)")
	fs.StringVar(&password, "password", "", "encrypt with this password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("send: exactly one file path is required")
	}
	n, logger, err := c.node()
	if err != nil {
		return err
	}

	s := n.NewSession()
	s.Password = password
	if peer != "" {
		s.Peer = peer
	} else {
		peers, err := s.Discover(ctx)
		if err != nil {
			return err
		}
		printPeers(peers)
		if len(peers) == 0 {
			return lanshare.ErrNoPeer
		}
		if err := s.Choose(index - 1); err != nil {
			return err
		}
	}

	if err := s.Send(ctx, fs.Arg(0)); err != nil {
		return err
	}
	logger.Info("file sent", "peer", s.Peer, "file", fs.Arg(0))
	return nil
}

func runReceive(ctx context.Context, args []string) error {
	var (
		c        common
		dir      string
		password string
	)
	fs := flag.NewFlagSet("receive", flag.ContinueOnError)
	c.register(fs)
	fs.StringVar(&dir, "dir", ".", "directory to save the file into")
	fs.StringVar(&password, "password", "", "decrypt with this password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, logger, err := c.node()
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}
	defer n.Close()

	s := n.NewSession()
	s.SaveDir = dir
	s.Password = password
	logger.Info("waiting for a file", "port", c.transferPort, "dir", dir)
	path, err := s.Receive(ctx)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	var (
		verbose bool
		addr    string
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.BoolVar(&verbose, "v", false, "debug logging")
	fs.StringVar(&addr, "addr", fmt.Sprintf(":%d", protocol.WebLinkPort), "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("serve: exactly one file path is required")
	}
	logger := (&common{verbose: verbose}).logger()
	return weblink.New(fs.Arg(0), logger).ListenAndServe(ctx, addr)
}

// describe turns the known failure kinds into a one-line message.
func describe(err error) string {
	switch {
	case errors.Is(err, transfer.ErrDecryptionFailed):
		return "decryption failed (likely wrong password): " + err.Error()
	case errors.Is(err, transfer.ErrMissingPassword):
		return "the sender encrypted this file; pass -password"
	case errors.Is(err, transfer.ErrPeerUnreachable):
		return "peer unreachable: " + err.Error()
	default:
		return err.Error()
	}
}
