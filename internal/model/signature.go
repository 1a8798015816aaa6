package model

import "time"

// Signature is the captured signature event of one party, with evidentiary metadata.
type Signature struct {
	PartyID        string    `json:"partyId"`
	SignatureImage string    `json:"signatureImage"`
	SignatureData  string    `json:"signatureData"` // raw stroke/vector capture
	SignedAt       time.Time `json:"signedAt"`
	IPAddress      string    `json:"ipAddress"`
	DeviceInfo     string    `json:"deviceInfo"`
}
