// Package enginetest runs an in-process definition engine on a bufconn
// listener so the harness can be exercised without a network.
package enginetest

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/cloud-bulldozer/avap-bench/pkg/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Token is the credential the fake engine accepts unless Engine.Token is set.
const Token = "avap_secret_key_2026"

// Engine is the behaviour of the fake definition engine.
type Engine struct {
	// Token required in the x-avap-auth header. Empty means the package default.
	Token string
	// Delay is added to every GetCommand call.
	Delay time.Duration
	// Catalog is served by SyncCatalog and backs GetCommand lookups.
	Catalog []client.CommandRecord
	// Fail, when set, is consulted for every authorised GetCommand with the
	// 1-based call number; a non-nil error is returned to the caller.
	Fail func(n int64) error
	// SyncErr, when set, is returned by SyncCatalog.
	SyncErr error
	// Health registers grpc.health.v1 reporting the engine as SERVING.
	Health bool

	schema      *client.Schema
	calls       atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

// Server is a running fake engine.
type Server struct {
	*Engine
	srv *grpc.Server
	lis *bufconn.Listener
}

// Start serves e on a fresh in-memory listener.
func Start(e *Engine) (*Server, error) {
	schema, err := client.LoadSchema()
	if err != nil {
		return nil, err
	}
	if e.Token == "" {
		e.Token = Token
	}
	e.schema = schema

	s := &Server{Engine: e, srv: grpc.NewServer(), lis: bufconn.Listen(1 << 20)}
	s.srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: client.ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetCommand", Handler: e.getCommand},
			{MethodName: "SyncCatalog", Handler: e.syncCatalog},
		},
		Metadata: "avap.proto",
	}, e)
	if e.Health {
		hs := health.NewServer()
		hs.SetServingStatus(client.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(s.srv, hs)
	}
	go s.srv.Serve(s.lis)
	return s, nil
}

// Target is the address to hand to client.Connect together with DialOptions.
func (s *Server) Target() string {
	return "passthrough:///bufnet"
}

// DialOptions route the client through the in-memory listener.
func (s *Server) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

// Close stops the server and its listener.
func (s *Server) Close() {
	s.srv.Stop()
	s.lis.Close()
}

// Calls is the number of GetCommand calls received.
func (e *Engine) Calls() int64 {
	return e.calls.Load()
}

// MaxInflight is the highest number of GetCommand calls observed at once.
func (e *Engine) MaxInflight() int64 {
	return e.maxInflight.Load()
}

func (e *Engine) authorize(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(client.AuthHeader)
	if len(vals) == 0 || subtle.ConstantTimeCompare([]byte(vals[0]), []byte(e.Token)) != 1 {
		return status.Error(codes.Unauthenticated, "Invalid Credentials")
	}
	return nil
}

func (e *Engine) enter() func() {
	cur := e.inflight.Add(1)
	for {
		peak := e.maxInflight.Load()
		if cur <= peak || e.maxInflight.CompareAndSwap(peak, cur) {
			break
		}
	}
	return func() { e.inflight.Add(-1) }
}

func (e *Engine) getCommand(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := dynamicpb.NewMessage(e.schema.CommandRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		defer e.enter()()
		n := e.calls.Add(1)
		if err := e.authorize(ctx); err != nil {
			return nil, err
		}
		if e.Delay > 0 {
			select {
			case <-time.After(e.Delay):
			case <-ctx.Done():
				return nil, status.FromContextError(ctx.Err()).Err()
			}
		}
		if e.Fail != nil {
			if err := e.Fail(n); err != nil {
				return nil, err
			}
		}
		name := e.schema.RequestName(req)
		for _, rec := range e.Catalog {
			if rec.Name == name {
				return e.schema.CommandMessage(rec), nil
			}
		}
		return nil, status.Error(codes.NotFound, fmt.Sprintf("Command '%s' not found", name))
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: e, FullMethod: client.GetCommandMethod}
	return interceptor(ctx, req, info, handler)
}

func (e *Engine) syncCatalog(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := dynamicpb.NewMessage(e.schema.Empty)
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		if err := e.authorize(ctx); err != nil {
			return nil, err
		}
		if e.SyncErr != nil {
			return nil, e.SyncErr
		}
		return e.schema.CatalogMessage(client.CatalogRecord{
			Commands:    e.Catalog,
			TotalCount:  int32(len(e.Catalog)),
			VersionHash: fmt.Sprintf("v-%d", len(e.Catalog)),
		}), nil
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: e, FullMethod: client.SyncCatalogMethod}
	return interceptor(ctx, req, info, handler)
}
