// Package grpcserver exposes the contract service over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/and161185/econtract/internal/auth"
	"github.com/and161185/econtract/internal/convert"
	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository"
	"github.com/and161185/econtract/internal/rpc"
	"github.com/and161185/econtract/internal/service"
)

// Server wires the contract service into gRPC handlers.
type Server struct {
	rpc.UnimplementedContractServiceServer
	contracts service.ContractService
	log       *zap.Logger
}

var _ rpc.ContractServiceServer = (*Server)(nil)

// New constructs a gRPC server with the injected service.
func New(contracts service.ContractService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{contracts: contracts, log: log.With(zap.String("component", "grpc"))}
}

func actorFromCtx(ctx context.Context) (string, error) {
	actor, ok := auth.ActorFromCtx(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "no auth")
	}
	return actor, nil
}

// toStatus maps service errors to gRPC status codes.
func (s *Server) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists), errors.Is(err, errs.ErrDuplicateParty):
		return status.Errorf(codes.AlreadyExists, "%s: %v", op, err)
	case errors.Is(err, errs.ErrInvalidInput), errors.Is(err, errs.ErrInvalidStatus),
		errors.Is(err, errs.ErrPartyNotFound):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, errs.ErrTransitionDenied):
		return status.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrForbidden):
		return status.Errorf(codes.PermissionDenied, "%s: %v", op, err)
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrUnavailable):
		return status.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		s.log.Error("internal error", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s: internal error", op)
	}
}

func (s *Server) reply(op string, c *model.Contract) (*structpb.Struct, error) {
	out, err := convert.ToProtoContract(c, s.contracts.FullySigned(c))
	if err != nil {
		return nil, s.toStatus(op, err)
	}
	return out, nil
}

func decode(in *structpb.Struct, out any) error {
	if err := convert.Decode(in, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}
	return nil
}

// CreateContract stores a new contract from a record.
func (s *Server) CreateContract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := convert.FromProtoRecord(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad record: %v", err)
	}
	c, err := s.contracts.Create(ctx, actor, rec)
	if err != nil {
		return nil, s.toStatus("create", err)
	}
	return s.reply("create", c)
}

// GetContract returns one contract by id.
func (s *Server) GetContract(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if _, err := actorFromCtx(ctx); err != nil {
		return nil, err
	}
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "empty id")
	}
	c, err := s.contracts.Get(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus("get", err)
	}
	return s.reply("get", c)
}

// ListContracts returns contracts matching the filter.
func (s *Server) ListContracts(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	if _, err := actorFromCtx(ctx); err != nil {
		return nil, err
	}
	var m convert.ListMessage
	if len(req.GetFields()) > 0 {
		if err := decode(req, &m); err != nil {
			return nil, err
		}
	}
	list, err := s.contracts.List(ctx, repository.Filter{
		Status: model.Status(m.Status),
		Type:   model.Type(m.Type),
		Limit:  m.Limit,
		Offset: m.Offset,
	})
	if err != nil {
		return nil, s.toStatus("list", err)
	}
	out, err := convert.ToProtoContracts(list, s.contracts.FullySigned)
	if err != nil {
		return nil, s.toStatus("list", err)
	}
	return out, nil
}

// SignContract records the signature of one party. The client address is
// taken from the connection.
func (s *Server) SignContract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var m convert.SignMessage
	if err := decode(req, &m); err != nil {
		return nil, err
	}
	if m.ID == "" || m.PartyID == "" {
		return nil, status.Error(codes.InvalidArgument, "empty id/partyId")
	}
	c, err := s.contracts.Sign(ctx, actor, m.ID, service.SignRequest{
		PartyID:        m.PartyID,
		SignatureImage: m.SignatureImage,
		SignatureData:  m.SignatureData,
		IPAddress:      remoteIP(ctx),
		DeviceInfo:     m.DeviceInfo,
	})
	if err != nil {
		return nil, s.toStatus("sign", err)
	}
	return s.reply("sign", c)
}

// UpdateStatus changes the lifecycle status.
func (s *Server) UpdateStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var m convert.StatusMessage
	if err := decode(req, &m); err != nil {
		return nil, err
	}
	st, err := model.ParseStatus(m.Status)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	c, err := s.contracts.UpdateStatus(ctx, actor, m.ID, st)
	if err != nil {
		return nil, s.toStatus("update status", err)
	}
	return s.reply("update status", c)
}

// AddParty appends a party.
func (s *Server) AddParty(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var m convert.PartyMessage
	if err := decode(req, &m); err != nil {
		return nil, err
	}
	c, err := s.contracts.AddParty(ctx, actor, m.ID, m.Party)
	if err != nil {
		return nil, s.toStatus("add party", err)
	}
	return s.reply("add party", c)
}

// AddFile records an already stored file.
func (s *Server) AddFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var m convert.FileMessage
	if err := decode(req, &m); err != nil {
		return nil, err
	}
	c, err := s.contracts.AddFile(ctx, actor, m.ID, m.File)
	if err != nil {
		return nil, s.toStatus("add file", err)
	}
	return s.reply("add file", c)
}
