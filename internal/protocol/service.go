// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified name of the TestHost service.
const ServiceName = "testplay.protocol.TestHost"

const (
	methodInitialize    = "/" + ServiceName + "/Initialize"
	methodDiscoverTests = "/" + ServiceName + "/DiscoverTests"
	methodRunTests      = "/" + ServiceName + "/RunTests"
	methodExit          = "/" + ServiceName + "/Exit"
)

// TestHostClient is the client API of the TestHost service.
type TestHostClient interface {
	Initialize(ctx context.Context, in *InitializeRequest, opts ...grpc.CallOption) (*InitializeResponse, error)
	DiscoverTests(ctx context.Context, in *DiscoverTestsRequest, opts ...grpc.CallOption) (TestHost_StreamClient, error)
	RunTests(ctx context.Context, in *RunTestsRequest, opts ...grpc.CallOption) (TestHost_StreamClient, error)
	Exit(ctx context.Context, in *ExitRequest, opts ...grpc.CallOption) (*ExitResponse, error)
}

// TestHost_StreamClient receives messages of a DiscoverTests or RunTests call.
type TestHost_StreamClient interface {
	Recv() (*StreamMessage, error)
	grpc.ClientStream
}

type testHostClient struct {
	cc grpc.ClientConnInterface
}

// NewTestHostClient returns a TestHostClient. Calls always use Codec.
func NewTestHostClient(cc grpc.ClientConnInterface) TestHostClient {
	return &testHostClient{cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *testHostClient) Initialize(ctx context.Context, in *InitializeRequest, opts ...grpc.CallOption) (*InitializeResponse, error) {
	out := new(InitializeResponse)
	if err := c.cc.Invoke(ctx, methodInitialize, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *testHostClient) DiscoverTests(ctx context.Context, in *DiscoverTestsRequest, opts ...grpc.CallOption) (TestHost_StreamClient, error) {
	return c.openStream(ctx, &ServiceDesc.Streams[0], methodDiscoverTests, in, opts)
}

func (c *testHostClient) RunTests(ctx context.Context, in *RunTestsRequest, opts ...grpc.CallOption) (TestHost_StreamClient, error) {
	return c.openStream(ctx, &ServiceDesc.Streams[1], methodRunTests, in, opts)
}

func (c *testHostClient) openStream(ctx context.Context, desc *grpc.StreamDesc, method string, in interface{}, opts []grpc.CallOption) (TestHost_StreamClient, error) {
	stream, err := c.cc.NewStream(ctx, desc, method, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &streamClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *testHostClient) Exit(ctx context.Context, in *ExitRequest, opts ...grpc.CallOption) (*ExitResponse, error) {
	out := new(ExitResponse)
	if err := c.cc.Invoke(ctx, methodExit, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

type streamClient struct {
	grpc.ClientStream
}

func (x *streamClient) Recv() (*StreamMessage, error) {
	m := new(StreamMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// TestHostServer is the server API of the TestHost service.
type TestHostServer interface {
	Initialize(context.Context, *InitializeRequest) (*InitializeResponse, error)
	DiscoverTests(*DiscoverTestsRequest, TestHost_StreamServer) error
	RunTests(*RunTestsRequest, TestHost_StreamServer) error
	Exit(context.Context, *ExitRequest) (*ExitResponse, error)
}

// TestHost_StreamServer sends messages of a DiscoverTests or RunTests call.
type TestHost_StreamServer interface {
	Send(*StreamMessage) error
	grpc.ServerStream
}

// RegisterTestHostServer registers srv to s.
func RegisterTestHostServer(s grpc.ServiceRegistrar, srv TestHostServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type streamServer struct {
	grpc.ServerStream
}

func (x *streamServer) Send(m *StreamMessage) error {
	return x.ServerStream.SendMsg(m)
}

func initializeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InitializeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TestHostServer).Initialize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInitialize}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TestHostServer).Initialize(ctx, req.(*InitializeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func exitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ExitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TestHostServer).Exit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExit}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TestHostServer).Exit(ctx, req.(*ExitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func discoverTestsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(DiscoverTestsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TestHostServer).DiscoverTests(in, &streamServer{stream})
}

func runTestsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(RunTestsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TestHostServer).RunTests(in, &streamServer{stream})
}

// ServiceDesc describes the TestHost service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TestHostServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Initialize", Handler: initializeHandler},
		{MethodName: "Exit", Handler: exitHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "DiscoverTests", Handler: discoverTestsHandler, ServerStreams: true},
		{StreamName: "RunTests", Handler: runTestsHandler, ServerStreams: true},
	},
	Metadata: "testplay/protocol",
}
