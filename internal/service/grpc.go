package service

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

// JSONCodec lets the gRPC server exchange plain JSON bodies instead of
// protobuf — there is no .proto in this repo, and the wire messages are
// exactly the same structs the HTTP surface already encodes.
type JSONCodec struct{}

func (JSONCodec) Name() string                      { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)     { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// ConversionServer is the gRPC-facing interface a *Server satisfies via
// the adapter methods below.
type ConversionServer interface {
	GRPCConvert(context.Context, *ConvertRequest) (*ConvertResponse, error)
	GRPCStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	GRPCCancel(context.Context, *CancelRequest) (*CancelResponse, error)
}

// StatusRequest and CancelRequest carry the run id over gRPC; HTTP takes
// it from the URL path instead.
type StatusRequest struct {
	RunID string `json:"run_id"`
}

type CancelRequest struct {
	RunID string `json:"run_id"`
}

// GRPCConvert, GRPCStatus, and GRPCCancel adapt Server's transport-
// agnostic methods to the ConversionServer interface's signature.
func (s *Server) GRPCConvert(ctx context.Context, req *ConvertRequest) (*ConvertResponse, error) {
	resp := s.Convert(ctx, *req)
	return &resp, nil
}

func (s *Server) GRPCStatus(_ context.Context, req *StatusRequest) (*StatusResponse, error) {
	resp, err := s.Status(req.RunID)
	return &resp, err
}

func (s *Server) GRPCCancel(_ context.Context, req *CancelRequest) (*CancelResponse, error) {
	resp, err := s.Cancel(req.RunID)
	return &resp, err
}

// RegisterConversionServer registers srv on s with a manually-built
// ServiceDesc — there is no protobuf codegen in this repo, so the method
// table is written out by hand, the same way the teacher's
// TinySQLServer is registered.
func RegisterConversionServer(s *grpc.Server, srv ConversionServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "csv2sav.ConversionService",
		HandlerType: (*ConversionServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Convert", Handler: conversionConvertHandler},
			{MethodName: "Status", Handler: conversionStatusHandler},
			{MethodName: "Cancel", Handler: conversionCancelHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "csv2sav",
	}, srv)
}

func conversionConvertHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ConvertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConversionServer).GRPCConvert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/csv2sav.ConversionService/Convert"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConversionServer).GRPCConvert(ctx, req.(*ConvertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func conversionStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConversionServer).GRPCStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/csv2sav.ConversionService/Status"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConversionServer).GRPCStatus(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func conversionCancelHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConversionServer).GRPCCancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/csv2sav.ConversionService/Cancel"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConversionServer).GRPCCancel(ctx, req.(*CancelRequest))
	}
	return interceptor(ctx, in, info, handler)
}
