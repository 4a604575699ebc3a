// Package grpclink implements transport.Transport over gRPC, standing in for
// the short-range radio on hosts that have none. Each device runs a Link
// server on its endpoint address; a write is a unary call carrying the bytes,
// with the sender endpoint and characteristic in the call metadata.
//
// The sender endpoint is claimed by the caller and is not authenticated.
// Like a radio address it names where to reply, not who the peer is: peers
// are identified by the signatures carried in attestations and tokens.
package grpclink

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/transport"
)

const defaultWriteTimeout = 3 * time.Second

// Option customises a Link.
type Option func(*Link)

// WithDialOptions appends gRPC dial options used for outbound writes.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(l *Link) { l.dialOpts = append(l.dialOpts, opts...) }
}

// WithWriteTimeout bounds each outbound write.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Link) { l.writeTimeout = d }
}

// Link is one device on the gRPC link.
type Link struct {
	*transport.Dispatcher

	self         transport.Endpoint
	peers        []transport.Endpoint
	logger       logging.Logger
	dialOpts     []grpc.DialOption
	writeTimeout time.Duration

	mu    sync.Mutex
	conns map[transport.Endpoint]*grpc.ClientConn
}

// New creates a Link advertised as self. peers are reported as discovered
// once the server starts; other devices are discovered when they write.
func New(self string, peers []string, logger logging.Logger, opts ...Option) *Link {
	logger = logger.With("module", "grpclink", "endpoint", self)
	l := &Link{
		Dispatcher:   transport.NewDispatcher(logger),
		self:         transport.Endpoint(self),
		logger:       logger,
		dialOpts:     []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		writeTimeout: defaultWriteTimeout,
		conns:        make(map[transport.Endpoint]*grpc.ClientConn),
	}
	for _, p := range peers {
		if p != self {
			l.peers = append(l.peers, transport.Endpoint(p))
		}
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Link) Self() transport.Endpoint { return l.self }

// Run listens on the endpoint address and serves until ctx is done.
func (l *Link) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", string(l.self))
	if err != nil {
		return err
	}
	return l.Serve(ctx, lis)
}

// Serve serves the Link service on lis until ctx is done.
func (l *Link) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(l.addressingInterceptor))
	srv.RegisterService(&linkServiceDesc, &server{link: l})

	go func() {
		<-ctx.Done()
		l.logger.Info(ctx, "Stopping link server...")
		srv.GracefulStop()
		l.closeConns()
	}()

	for _, p := range l.peers {
		l.Discover(ctx, p)
	}

	l.logger.Info(ctx, "Starting link server", "address", lis.Addr().String())
	return srv.Serve(lis)
}

// server implements the Link service for a Link.
type server struct {
	link *Link
}

func (s *server) Write(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	from, _ := ctx.Value(senderKey).(transport.Endpoint)
	ch, _ := ctx.Value(characteristicKey).(transport.Characteristic)

	s.link.Discover(ctx, from)
	if !s.link.Deliver(ctx, transport.Packet{Characteristic: ch, From: from, Data: in.GetValue()}) {
		return nil, status.Errorf(codes.Unavailable, "characteristic %s not available", ch)
	}
	return wrapperspb.Bool(true), nil
}

// Write hands data to characteristic ch on to. Failures are logged and
// reported as false.
func (l *Link) Write(ctx context.Context, to transport.Endpoint, ch transport.Characteristic, data []byte) bool {
	if err := l.WriteTo(ctx, to, ch, data); err != nil {
		l.logger.Warn(ctx, "link write failed", "to", to, "characteristic", ch, "error", err)
		return false
	}
	return true
}

// WriteTo is the client side: it writes data to characteristic ch on to.
func (l *Link) WriteTo(ctx context.Context, to transport.Endpoint, ch transport.Characteristic, data []byte) error {
	conn, err := l.conn(to)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.writeTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, mdEndpoint, string(l.self), mdCharacteristic, string(ch))

	out := new(wrapperspb.BoolValue)
	return conn.Invoke(ctx, writeMethod, wrapperspb.Bytes(data), out)
}

func (l *Link) conn(to transport.Endpoint) (*grpc.ClientConn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.conns[to]; ok {
		return c, nil
	}
	c, err := grpc.NewClient("passthrough:///"+string(to), l.dialOpts...)
	if err != nil {
		return nil, err
	}
	l.conns[to] = c
	return c, nil
}

func (l *Link) closeConns() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ep, c := range l.conns {
		_ = c.Close()
		delete(l.conns, ep)
	}
}

var (
	_ linkServer          = (*server)(nil)
	_ transport.Transport = (*Link)(nil)
)
