// Package rpc declares the econtract.v1.ContractService gRPC service.
// Methods exchange protobuf well-known types; the payload shapes are the
// message types of package convert.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "econtract.v1.ContractService"

const (
	CreateContractMethod = "/" + ServiceName + "/CreateContract"
	GetContractMethod    = "/" + ServiceName + "/GetContract"
	ListContractsMethod  = "/" + ServiceName + "/ListContracts"
	SignContractMethod   = "/" + ServiceName + "/SignContract"
	UpdateStatusMethod   = "/" + ServiceName + "/UpdateStatus"
	AddPartyMethod       = "/" + ServiceName + "/AddParty"
	AddFileMethod        = "/" + ServiceName + "/AddFile"
)

// ContractServiceServer is the server API for ContractService.
type ContractServiceServer interface {
	CreateContract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetContract(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListContracts(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	SignContract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddParty(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddFile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedContractServiceServer can be embedded for forward compatibility.
type UnimplementedContractServiceServer struct{}

func (UnimplementedContractServiceServer) CreateContract(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateContract not implemented")
}
func (UnimplementedContractServiceServer) GetContract(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetContract not implemented")
}
func (UnimplementedContractServiceServer) ListContracts(context.Context, *structpb.Struct) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ListContracts not implemented")
}
func (UnimplementedContractServiceServer) SignContract(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SignContract not implemented")
}
func (UnimplementedContractServiceServer) UpdateStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateStatus not implemented")
}
func (UnimplementedContractServiceServer) AddParty(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method AddParty not implemented")
}
func (UnimplementedContractServiceServer) AddFile(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method AddFile not implemented")
}

// RegisterContractServiceServer registers srv on s.
func RegisterContractServiceServer(s grpc.ServiceRegistrar, srv ContractServiceServer) {
	s.RegisterService(&ContractServiceDesc, srv)
}

// unary adapts a typed method to grpc.MethodHandler, running the interceptor chain.
func unary[Req any, Resp any](
	fullMethod string, call func(ContractServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ContractServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ContractServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ContractServiceDesc is the grpc.ServiceDesc for ContractService.
var ContractServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ContractServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateContract", Handler: unary(CreateContractMethod, ContractServiceServer.CreateContract)},
		{MethodName: "GetContract", Handler: unary(GetContractMethod, ContractServiceServer.GetContract)},
		{MethodName: "ListContracts", Handler: unary(ListContractsMethod, ContractServiceServer.ListContracts)},
		{MethodName: "SignContract", Handler: unary(SignContractMethod, ContractServiceServer.SignContract)},
		{MethodName: "UpdateStatus", Handler: unary(UpdateStatusMethod, ContractServiceServer.UpdateStatus)},
		{MethodName: "AddParty", Handler: unary(AddPartyMethod, ContractServiceServer.AddParty)},
		{MethodName: "AddFile", Handler: unary(AddFileMethod, ContractServiceServer.AddFile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "econtract/v1/contract_service.proto",
}

// ContractServiceClient is the client API for ContractService.
type ContractServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewContractServiceClient wraps a connection.
func NewContractServiceClient(cc grpc.ClientConnInterface) *ContractServiceClient {
	return &ContractServiceClient{cc: cc}
}

func (c *ContractServiceClient) CreateContract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CreateContractMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ContractServiceClient) GetContract(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetContractMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ContractServiceClient) ListContracts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListContractsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ContractServiceClient) SignContract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SignContractMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ContractServiceClient) UpdateStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, UpdateStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ContractServiceClient) AddParty(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AddPartyMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ContractServiceClient) AddFile(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AddFileMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
