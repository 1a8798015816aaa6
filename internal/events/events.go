// Package events publishes contract lifecycle notifications.
package events

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/and161185/econtract/internal/model"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindCreated       Kind = "contract.created"
	KindSigned        Kind = "contract.signed"
	KindStatusChanged Kind = "contract.status_changed"
	KindPartyAdded    Kind = "contract.party_added"
	KindFileAdded     Kind = "contract.file_added"
)

// Event is the published payload.
type Event struct {
	Kind       Kind         `json:"kind"`
	ContractID string       `json:"contractId"`
	Actor      string       `json:"actor,omitempty"`
	Status     model.Status `json:"status,omitempty"`
	PrevStatus model.Status `json:"prevStatus,omitempty"`
	PartyID    string       `json:"partyId,omitempty"`
	FileID     string       `json:"fileId,omitempty"`
	Digest     string       `json:"digest,omitempty"`
	At         time.Time    `json:"at"`
}

// Publisher delivers events to subscribers. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// SignatureDigest returns a hex BLAKE2b-256 digest binding a signature to its
// contract and party. Subscribers use it as tamper evidence without
// receiving the signature image.
func SignatureDigest(contractID string, sig model.Signature) string {
	payload, _ := json.Marshal(struct {
		ContractID string    `json:"contractId"`
		PartyID    string    `json:"partyId"`
		Image      string    `json:"signatureImage"`
		Data       string    `json:"signatureData"`
		SignedAt   time.Time `json:"signedAt"`
		IP         string    `json:"ipAddress"`
		Device     string    `json:"deviceInfo"`
	}{
		ContractID: contractID,
		PartyID:    sig.PartyID,
		Image:      sig.SignatureImage,
		Data:       sig.SignatureData,
		SignedAt:   sig.SignedAt.UTC(),
		IP:         sig.IPAddress,
		Device:     sig.DeviceInfo,
	})
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
