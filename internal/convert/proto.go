// Package convert maps contract records and request messages to and from
// protobuf well-known types. Messages carry the JSON record shape inside
// google.protobuf.Struct, so no generated code is involved.
package convert

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
)

// --- request messages ---

// ListMessage is the ListContracts filter.
type ListMessage struct {
	Status string `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SignMessage is the SignContract request.
type SignMessage struct {
	ID             string `json:"id"`
	PartyID        string `json:"partyId"`
	SignatureImage string `json:"signatureImage,omitempty"`
	SignatureData  string `json:"signatureData,omitempty"`
	DeviceInfo     string `json:"deviceInfo,omitempty"`
}

// StatusMessage is the UpdateStatus request.
type StatusMessage struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PartyMessage is the AddParty request.
type PartyMessage struct {
	ID    string      `json:"id"`
	Party model.Party `json:"party"`
}

// FileMessage is the AddFile request.
type FileMessage struct {
	ID   string     `json:"id"`
	File model.File `json:"file"`
}

// --- generic helpers ---

// Encode converts any JSON-marshalable value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return s, nil
}

// Decode unmarshals a Struct into out through its JSON form.
func Decode(s *structpb.Struct, out any) error {
	if s == nil {
		return fmt.Errorf("nil message: %w", errs.ErrInvalidInput)
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode message: %v: %w", err, errs.ErrInvalidInput)
	}
	return nil
}

// --- contracts ---

// Contract is the detail view: the record plus derived flags.
type Contract struct {
	model.Record
	FullySigned bool `json:"fullySigned"`
	Expired     bool `json:"expired"`
}

// ToContract builds the detail view of c.
func ToContract(c *model.Contract, fullySigned bool) Contract {
	return Contract{Record: c.Record(), FullySigned: fullySigned, Expired: c.IsExpired()}
}

// ToProtoContract encodes the detail view of c.
func ToProtoContract(c *model.Contract, fullySigned bool) (*structpb.Struct, error) {
	return Encode(ToContract(c, fullySigned))
}

// ToProtoContracts encodes a list of detail views.
func ToProtoContracts(cs []*model.Contract, fullySigned func(*model.Contract) bool) (*structpb.ListValue, error) {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(cs))}
	for _, c := range cs {
		s, err := ToProtoContract(c, fullySigned(c))
		if err != nil {
			return nil, fmt.Errorf("contract %q: %w", c.ID(), err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(s))
	}
	return out, nil
}

// FromProtoRecord decodes a contract record. Derived keys are ignored.
func FromProtoRecord(s *structpb.Struct) (model.Record, error) {
	var rec model.Record
	if err := Decode(s, &rec); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// FromProtoContract decodes a detail view.
func FromProtoContract(s *structpb.Struct) (Contract, error) {
	var c Contract
	if err := Decode(s, &c); err != nil {
		return Contract{}, err
	}
	return c, nil
}

// FromProtoContracts decodes a list of detail views.
func FromProtoContracts(l *structpb.ListValue) ([]Contract, error) {
	out := make([]Contract, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("item[%d]: not an object: %w", i, errs.ErrInvalidInput)
		}
		c, err := FromProtoContract(s)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}
