package lanshare

import (
	"errors"
	"net"
	"strconv"

	"github.com/lanshare/lanshare/lanshare/discovery"
	"github.com/lanshare/lanshare/lanshare/transfer"
)

var (
	ErrNoPeer           = errors.New("lanshare: no peer selected")
	ErrPeerIndex        = errors.New("lanshare: peer index out of range")
	ErrUnknownTransport = errors.New("lanshare: unknown transport")
)

// Node is a lanshare participant. It stays small so applications can drive
// discovery and transfers through Sessions however they like.
type Node struct {
	cfg       Config
	responder *discovery.Responder
	resolver  discovery.Resolver
	sender    *transfer.Sender
	receiver  *transfer.Receiver
}

func NewNode(cfg Config) (*Node, error) {
	cfg = cfg.withDefaults()
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	tcfg := cfg.transferConfig(tr)

	req := discovery.NewRequester(cfg.Logger)
	req.Port = cfg.DiscoveryPort
	req.Window = cfg.DiscoveryWindow
	req.Attempt = cfg.DiscoveryAttempt
	req.Targets = append([]string(nil), cfg.Targets...)

	return &Node{
		cfg:       cfg,
		responder: discovery.NewResponder(net.JoinHostPort("", strconv.Itoa(cfg.DiscoveryPort)), cfg.Logger),
		resolver:  req,
		sender:    transfer.NewSender(tcfg),
		receiver:  transfer.NewReceiver(tcfg),
	}, nil
}

// SetResolver replaces broadcast discovery, e.g. with a static memory.PeerSet.
func (n *Node) SetResolver(r discovery.Resolver) { n.resolver = r }

// Start launches the discovery responder. If another instance already holds
// the discovery port the node keeps working without answering discovery.
func (n *Node) Start() error {
	err := n.responder.Start()
	if errors.Is(err, discovery.ErrBindConflict) {
		n.cfg.Logger.Warn("another instance holds the discovery port; this node will not answer discovery", "port", n.cfg.DiscoveryPort)
		return nil
	}
	return err
}

// Listening reports whether this node answers discovery requests.
func (n *Node) Listening() bool {
	return n.responder.State() == discovery.StateListening
}

// Close stops the discovery responder.
func (n *Node) Close() error {
	return n.responder.Stop()
}

// NewSession starts a fresh operation context.
func (n *Node) NewSession() *Session {
	return &Session{node: n}
}
