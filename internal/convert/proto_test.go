package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
)

func sample() *model.Contract {
	at := time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC)
	end := at.AddDate(50, 0, 0)
	c := model.New(model.Record{
		ID:        "c1",
		Title:     "Lease",
		EndTime:   &end,
		Parties:   []model.Party{model.NewParty("p1", "u1", "Zhang", "landlord")},
		Files:     []model.File{{ID: "f1", FileName: "a.pdf", FileSize: 123456789, UploadedAt: at}},
		Metadata:  map[string]any{"region": "north", "floors": []any{"1", "2"}},
		CreatedAt: at,
		UpdatedAt: at,
	})
	return c
}

func TestContract_RoundTrip(t *testing.T) {
	t.Parallel()
	c := sample()
	s, err := ToProtoContract(c, true)
	require.NoError(t, err)
	require.True(t, s.GetFields()["fullySigned"].GetBoolValue())
	require.Equal(t, "c1", s.GetFields()["id"].GetStringValue())

	rec, err := FromProtoRecord(s)
	require.NoError(t, err)
	require.Equal(t, c.Record(), model.New(rec).Record())

	view, err := FromProtoContract(s)
	require.NoError(t, err)
	require.True(t, view.FullySigned)
	require.False(t, view.Expired)
	require.Equal(t, int64(123456789), view.Files[0].FileSize)
}

func TestContracts_List(t *testing.T) {
	t.Parallel()
	c := sample()
	l, err := ToProtoContracts([]*model.Contract{c, c}, func(*model.Contract) bool { return false })
	require.NoError(t, err)
	require.Len(t, l.GetValues(), 2)

	views, err := FromProtoContracts(l)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, "Lease", views[1].Title)

	bad := &structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("x")}}
	_, err = FromProtoContracts(bad)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestMessages(t *testing.T) {
	t.Parallel()
	s, err := Encode(SignMessage{ID: "c1", PartyID: "p1", SignatureData: "d"})
	require.NoError(t, err)

	var sm SignMessage
	require.NoError(t, Decode(s, &sm))
	require.Equal(t, SignMessage{ID: "c1", PartyID: "p1", SignatureData: "d"}, sm)

	s, err = Encode(ListMessage{Status: "active", Limit: 5})
	require.NoError(t, err)
	var lm ListMessage
	require.NoError(t, Decode(s, &lm))
	require.Equal(t, 5, lm.Limit)

	s, err = structpb.NewStruct(map[string]any{"id": "c1", "party": map[string]any{"id": "p2", "name": "Li"}})
	require.NoError(t, err)
	var pm PartyMessage
	require.NoError(t, Decode(s, &pm))
	require.True(t, pm.Party.IsSignatory, "isSignatory defaults to true")

	s, err = structpb.NewStruct(map[string]any{"limit": "ten"})
	require.NoError(t, err)
	require.ErrorIs(t, Decode(s, &lm), errs.ErrInvalidInput)
	require.ErrorIs(t, Decode(nil, &lm), errs.ErrInvalidInput)
}
