package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/and161185/econtract/internal/auth"
	"github.com/and161185/econtract/internal/convert"
	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository/memory"
	"github.com/and161185/econtract/internal/rpc"
	"github.com/and161185/econtract/internal/service"
)

const bufSize = 1 << 20

var signKey = []byte("test-secret")

func startBufGRPC(t *testing.T, srv rpc.ContractServiceServer) *rpc.ContractServiceClient {
	t.Helper()
	log := zaptest.NewLogger(t)
	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		AuthUnary(auth.NewVerifier(signKey, 0)),
	))
	rpc.RegisterContractServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return rpc.NewContractServiceClient(cc)
}

func asUser(t *testing.T, sub string) context.Context {
	t.Helper()
	tok, err := auth.Issue(signKey, sub, time.Minute, time.Now())
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func mustStruct(t *testing.T, v any) *structpb.Struct {
	t.Helper()
	s, err := convert.Encode(v)
	require.NoError(t, err)
	return s
}

func newSvc(cfg service.Config) *service.ContractServiceImpl {
	return service.NewContractService(memory.NewContractRepo(), cfg)
}

func TestServer_E2E_SigningFlow(t *testing.T) {
	t.Parallel()
	cl := startBufGRPC(t, New(newSvc(service.Config{AutoActivate: true}), nil))
	landlord := asUser(t, "u-landlord")
	tenant := asUser(t, "u-tenant")

	rec := model.Record{
		ContractNumber: "HT-1",
		Title:          "Lease",
		Parties: []model.Party{
			model.NewParty("A", "u-landlord", "Zhang", "landlord"),
			model.NewParty("B", "u-tenant", "Li", "tenant"),
		},
	}
	created, err := cl.CreateContract(landlord, mustStruct(t, rec))
	require.NoError(t, err)
	view, err := convert.FromProtoContract(created)
	require.NoError(t, err)
	require.NotEmpty(t, view.ID)
	require.Equal(t, model.StatusPending, view.Status)
	require.False(t, view.FullySigned)

	_, err = cl.SignContract(tenant, mustStruct(t, convert.SignMessage{ID: view.ID, PartyID: "A"}))
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = cl.SignContract(landlord, mustStruct(t, convert.SignMessage{ID: view.ID, PartyID: "A", SignatureData: "a"}))
	require.NoError(t, err)
	signed, err := cl.SignContract(tenant, mustStruct(t, convert.SignMessage{ID: view.ID, PartyID: "B", SignatureData: "b"}))
	require.NoError(t, err)
	view, err = convert.FromProtoContract(signed)
	require.NoError(t, err)
	require.True(t, view.FullySigned)
	require.Equal(t, model.StatusActive, view.Status)
	require.Equal(t, "B", view.SignatureInfo["B"].PartyID)
	require.NotEmpty(t, view.SignatureInfo["B"].IPAddress)

	got, err := cl.GetContract(tenant, wrapperspb.String(view.ID))
	require.NoError(t, err)
	require.Equal(t, "Lease", got.GetFields()["title"].GetStringValue())

	list, err := cl.ListContracts(tenant, mustStruct(t, convert.ListMessage{Status: "active"}))
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)

	list, err = cl.ListContracts(tenant, &structpb.Struct{})
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)
}

func TestServer_E2E_MutationsAndErrors(t *testing.T) {
	t.Parallel()
	cl := startBufGRPC(t, New(newSvc(service.Config{StrictTransitions: true}), nil))
	ctx := asUser(t, "u1")

	created, err := cl.CreateContract(ctx, mustStruct(t, model.Record{ID: "c1"}))
	require.NoError(t, err)
	require.Equal(t, "c1", created.GetFields()["id"].GetStringValue())

	_, err = cl.CreateContract(ctx, mustStruct(t, model.Record{ID: "c1"}))
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	withParty, err := cl.AddParty(ctx, mustStruct(t, convert.PartyMessage{ID: "c1", Party: model.NewParty("p1", "", "Wang", "agent")}))
	require.NoError(t, err)
	require.Len(t, withParty.GetFields()["parties"].GetListValue().GetValues(), 1)

	_, err = cl.AddParty(ctx, mustStruct(t, convert.PartyMessage{ID: "c1", Party: model.NewParty("p1", "", "Dup", "agent")}))
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	withFile, err := cl.AddFile(ctx, mustStruct(t, convert.FileMessage{ID: "c1", File: model.File{FileName: "scan.png", FileSize: 99}}))
	require.NoError(t, err)
	require.Len(t, withFile.GetFields()["files"].GetListValue().GetValues(), 1)

	_, err = cl.UpdateStatus(ctx, mustStruct(t, convert.StatusMessage{ID: "c1", Status: "terminated"}))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = cl.UpdateStatus(ctx, mustStruct(t, convert.StatusMessage{ID: "c1", Status: "archived"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	upd, err := cl.UpdateStatus(ctx, mustStruct(t, convert.StatusMessage{ID: "c1", Status: "Active"}))
	require.NoError(t, err)
	require.Equal(t, "active", upd.GetFields()["status"].GetStringValue())

	_, err = cl.SignContract(ctx, mustStruct(t, convert.SignMessage{ID: "c1", PartyID: "ghost"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = cl.GetContract(ctx, wrapperspb.String("missing"))
	require.Equal(t, codes.NotFound, status.Code(err))
	_, err = cl.GetContract(ctx, wrapperspb.String(""))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_E2E_Unauthenticated(t *testing.T) {
	t.Parallel()
	cl := startBufGRPC(t, New(newSvc(service.Config{}), nil))

	_, err := cl.GetContract(context.Background(), wrapperspb.String("c1"))
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer nope")
	_, err = cl.ListContracts(bad, &structpb.Struct{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_HandlersRequireActor(t *testing.T) {
	t.Parallel()
	s := New(newSvc(service.Config{}), nil)
	ctx := context.Background()

	_, err := s.CreateContract(ctx, &structpb.Struct{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	_, err = s.SignContract(ctx, &structpb.Struct{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	_, err = s.AddFile(ctx, &structpb.Struct{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = s.SignContract(auth.WithActor(ctx, "u"), mustStruct(t, convert.SignMessage{ID: "c1"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_toStatus(t *testing.T) {
	t.Parallel()
	s := New(newSvc(service.Config{}), zaptest.NewLogger(t))
	cases := map[error]codes.Code{
		errs.ErrNotFound:         codes.NotFound,
		errs.ErrAlreadyExists:    codes.AlreadyExists,
		errs.ErrDuplicateParty:   codes.AlreadyExists,
		errs.ErrInvalidInput:     codes.InvalidArgument,
		errs.ErrInvalidStatus:    codes.InvalidArgument,
		errs.ErrPartyNotFound:    codes.InvalidArgument,
		errs.ErrTransitionDenied: codes.FailedPrecondition,
		errs.ErrUnauthorized:     codes.Unauthenticated,
		errs.ErrForbidden:        codes.PermissionDenied,
		errs.ErrRateLimited:      codes.ResourceExhausted,
		errs.ErrUnavailable:      codes.Unavailable,
		context.Canceled:         codes.Canceled,
		errors.New("boom"):       codes.Internal,
	}
	for err, want := range cases {
		require.Equal(t, want, status.Code(s.toStatus("op", errors.Join(errors.New("ctx"), err))), err.Error())
	}
}
