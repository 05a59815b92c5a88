package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/cloud-bulldozer/avap-bench/pkg/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

// AuthHeader carries the engine credential on every call.
const AuthHeader = "x-avap-auth"

// maxRecvSize bounds a single response; the catalog can exceed the gRPC default of 4MB.
const maxRecvSize = 64 * 1024 * 1024

// CommandRecord is one command definition served by the engine.
type CommandRecord struct {
	Name          string
	Type          string
	InterfaceJSON string
	Code          []byte
	Hash          string
}

// CatalogRecord is the full ordered catalog returned by SyncCatalog.
type CatalogRecord struct {
	Commands    []CommandRecord
	TotalCount  int32
	VersionHash string
}

// Options tune how the channel is established.
type Options struct {
	// WaitReady bounds how long Connect waits for the channel to become READY.
	// Zero connects lazily and lets failures surface on the first call.
	WaitReady time.Duration
	// DialOptions are appended after the defaults.
	DialOptions []grpc.DialOption
}

// Channel is a long lived connection to the definition engine. It is safe for
// concurrent use by many workers.
type Channel struct {
	target    string
	conn      *grpc.ClientConn
	schema    *Schema
	closeOnce sync.Once
	closeErr  error
}

// Connect establishes the channel to target over an insecure transport.
func Connect(ctx context.Context, target string, opts Options) (*Channel, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvSize)),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, &ConnectionError{Target: target, Err: err}
	}
	c := &Channel{target: target, conn: conn, schema: schema}
	if opts.WaitReady > 0 {
		if err := c.waitReady(ctx, opts.WaitReady); err != nil {
			c.Close()
			return nil, &ConnectionError{Target: target, Err: err}
		}
	}
	log.Debugf("Channel to %s established", target)
	return c, nil
}

func (c *Channel) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	c.conn.Connect()
	for {
		state := c.conn.GetState()
		if state == connectivity.Ready {
			break
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("channel is %s after %s: %w", state, timeout, ctx.Err())
		}
	}
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		switch status.Code(err) {
		case codes.Unimplemented, codes.NotFound:
			log.Debugf("Health service not available on %s, skipping check", c.target)
			return nil
		}
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s reports %s", ServiceName, resp.GetStatus())
	}
	return nil
}

// Target is the address the channel was opened against.
func (c *Channel) Target() string {
	return c.target
}

func withAuth(ctx context.Context, authToken string) context.Context {
	if authToken == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AuthHeader, authToken)
}

// GetCommand looks up a single command definition by name.
func (c *Channel) GetCommand(ctx context.Context, name, authToken string) (CommandRecord, error) {
	req := c.schema.NewCommandRequest(name)
	resp := dynamicpb.NewMessage(c.schema.CommandResponse)
	if err := c.conn.Invoke(withAuth(ctx, authToken), GetCommandMethod, req, resp); err != nil {
		return CommandRecord{}, newRPCError(err)
	}
	return c.schema.commandRecord(resp), nil
}

// SyncCatalog fetches the full command catalog.
func (c *Channel) SyncCatalog(ctx context.Context, authToken string) (CatalogRecord, error) {
	req := dynamicpb.NewMessage(c.schema.Empty)
	resp := dynamicpb.NewMessage(c.schema.CatalogResponse)
	if err := c.conn.Invoke(withAuth(ctx, authToken), SyncCatalogMethod, req, resp); err != nil {
		return CatalogRecord{}, newRPCError(err)
	}
	return c.schema.catalogRecord(resp), nil
}

// Close releases the channel. Only the first call does any work.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		log.Debugf("Channel to %s closed", c.target)
	})
	return c.closeErr
}
