package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/simvar-client/internal/wire"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// SessionServiceName is the gRPC service carrying peer sessions.
	SessionServiceName = "simvar.v1.Peer"
	// SessionMethod is the full method name of the bidirectional session stream.
	SessionMethod = "/" + SessionServiceName + "/Session"
)

// The session stream exchanges google.protobuf.Struct messages produced by
// wire.ToStruct, so no generated stubs are needed on either side.
var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Session",
		Handler:       sessionStreamHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "simvar/v1/peer.proto",
}

// RegisterSessionService exposes srv on a gRPC server.
func RegisterSessionService(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}

func sessionStreamHandler(srv any, stream grpc.ServerStream) error {
	conn := &grpcConn{stream: stream}
	return srv.(SessionServer).ServeConn(stream.Context(), conn)
}

// messageStream is the subset of grpc.ClientStream / grpc.ServerStream used here.
type messageStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

type grpcConn struct {
	stream  messageStream
	sendMu  sync.Mutex
	closeFn func() error
	once    sync.Once
}

func (c *grpcConn) Send(ctx context.Context, f *wire.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := wire.ToStruct(f)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.stream.SendMsg(msg)
}

func (c *grpcConn) Recv() (*wire.Frame, error) {
	var msg structpb.Struct
	if err := c.stream.RecvMsg(&msg); err != nil {
		return nil, err
	}
	return wire.FromStruct(&msg)
}

func (c *grpcConn) Close() error {
	var err error
	c.once.Do(func() {
		if c.closeFn != nil {
			err = c.closeFn()
		}
	})
	return err
}

// GRPCDialer opens a session stream on a gRPC peer.
type GRPCDialer struct {
	Target string
	// Options replace the default insecure, otel-instrumented dial options.
	Options []grpc.DialOption
}

// DefaultGRPCOptions are used when GRPCDialer.Options is empty.
func DefaultGRPCOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Dial creates the client connection and opens the session stream. ctx bounds
// stream establishment only; the stream itself lives until Close.
func (d GRPCDialer) Dial(ctx context.Context) (Conn, error) {
	opts := d.Options
	if len(opts) == 0 {
		opts = DefaultGRPCOptions()
	}
	cc, err := grpc.NewClient(d.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", d.Target, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	cs, err := cc.NewStream(streamCtx, &sessionServiceDesc.Streams[0], SessionMethod)
	if !stop() {
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("open session stream: %w", err)
	}

	return &grpcConn{
		stream: cs,
		closeFn: func() error {
			_ = cs.CloseSend()
			cancel()
			return cc.Close()
		},
	}, nil
}

// NewGRPCServer builds a gRPC server instrumented with otel and serving srv.
func NewGRPCServer(srv SessionServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterSessionService(s, srv)
	return s
}
