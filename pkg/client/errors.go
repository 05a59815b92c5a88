package client

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SetupError means the client bindings could not be built. Nothing touched the network.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("client bindings unavailable: %v", e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// ConnectionError means the channel to Target could not be established.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RPCError is a single failed call, either rejected by the engine or lost in transport.
type RPCError struct {
	Code   codes.Code
	Detail string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", e.Code, e.Detail)
}

// GRPCStatus lets status.FromError and status.Code see through the wrapper.
func (e *RPCError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Detail)
}

func newRPCError(err error) *RPCError {
	if s, ok := status.FromError(err); ok {
		return &RPCError{Code: s.Code(), Detail: s.Message()}
	}
	return &RPCError{Code: codes.Unknown, Detail: err.Error()}
}

// CodeOf returns the status code carried by err, codes.OK for nil.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return status.Code(err)
}
