// Package model defines the electronic-contract aggregate and its value records.
//
// The package is transport- and storage-agnostic: callers exchange plain
// Record values (the JSON shape shared by every consumer of contract data)
// and drive lifecycle changes through Contract methods. A Contract assumes a
// single writer; hosts that mutate one contract concurrently must serialize
// writes per contract id.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/econtract/internal/errs"
)

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now() }

// Record is the plain, serializable shape of a contract.
type Record struct {
	ID             string               `json:"id"`
	ContractNumber string               `json:"contractNumber"`
	Title          string               `json:"title"`
	Content        string               `json:"content"`
	Status         Status               `json:"status"`
	Type           Type                 `json:"type"`
	StartTime      *time.Time           `json:"startTime,omitempty"`
	EndTime        *time.Time           `json:"endTime,omitempty"`
	Parties        []Party              `json:"parties"`
	SignatureInfo  map[string]Signature `json:"signatureInfo"`
	Files          []File               `json:"files"`
	Metadata       map[string]any       `json:"metadata"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// Contract is the aggregate root for one agreement and its lifecycle.
type Contract struct {
	id        string
	number    string
	title     string
	content   string
	status    Status
	typ       Type
	startTime *time.Time
	endTime   *time.Time

	parties    []Party
	partyIndex map[string]int // party id -> position in parties
	signatures map[string]Signature
	files      []File
	metadata   map[string]any

	createdAt time.Time
	updatedAt time.Time

	clock Clock
}

// Option configures a Contract at construction.
type Option func(*Contract)

// WithClock overrides the time source used for defaults, stamps and expiry checks.
func WithClock(clock Clock) Option {
	return func(c *Contract) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New builds a contract from a record, applying defaults for unset fields:
// status pending, type rental, empty collections, timestamps and file upload
// times set to now. The record is taken as-is otherwise; see Validate.
func New(rec Record, opts ...Option) *Contract {
	c := &Contract{clock: systemClock}
	for _, opt := range opts {
		opt(c)
	}
	now := c.clock().UTC()

	c.id = rec.ID
	c.number = rec.ContractNumber
	c.title = rec.Title
	c.content = rec.Content
	c.status = rec.Status
	if c.status == "" {
		c.status = StatusPending
	}
	c.typ = rec.Type
	if c.typ == "" {
		c.typ = TypeRental
	}
	c.startTime = utcPtr(rec.StartTime)
	c.endTime = utcPtr(rec.EndTime)

	c.parties = make([]Party, 0, len(rec.Parties))
	c.partyIndex = make(map[string]int, len(rec.Parties))
	for _, p := range rec.Parties {
		if _, dup := c.partyIndex[p.ID]; !dup {
			c.partyIndex[p.ID] = len(c.parties)
		}
		c.parties = append(c.parties, p)
	}

	c.signatures = make(map[string]Signature, len(rec.SignatureInfo))
	for k, s := range rec.SignatureInfo {
		s.SignedAt = s.SignedAt.UTC()
		c.signatures[k] = s
	}

	c.files = make([]File, 0, len(rec.Files))
	for _, f := range rec.Files {
		if f.UploadedAt.IsZero() {
			f.UploadedAt = now
		}
		f.UploadedAt = f.UploadedAt.UTC()
		c.files = append(c.files, f)
	}

	c.metadata = make(map[string]any, len(rec.Metadata))
	for k, v := range rec.Metadata {
		c.metadata[k] = v
	}

	c.createdAt = rec.CreatedAt.UTC()
	if rec.CreatedAt.IsZero() {
		c.createdAt = now
	}
	c.updatedAt = rec.UpdatedAt.UTC()
	if rec.UpdatedAt.IsZero() {
		c.updatedAt = now
	}
	return c
}

// Validate reports the first structural problem of the contract: unknown
// status or type, empty or duplicate party ids, signatures without a party,
// files without an id, or an end time before the start time.
func (c *Contract) Validate() error {
	if !c.status.Valid() {
		return fmt.Errorf("contract %q status %q: %w", c.id, c.status, errs.ErrInvalidStatus)
	}
	if !c.typ.Valid() {
		return fmt.Errorf("contract %q type %q: %w", c.id, c.typ, errs.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(c.parties))
	for i, p := range c.parties {
		if p.ID == "" {
			return fmt.Errorf("party[%d]: empty id: %w", i, errs.ErrInvalidInput)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("party[%d] %q: %w", i, p.ID, errs.ErrDuplicateParty)
		}
		seen[p.ID] = struct{}{}
	}
	for k, s := range c.signatures {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("signature for %q: %w", k, errs.ErrPartyNotFound)
		}
		if s.PartyID != "" && s.PartyID != k {
			return fmt.Errorf("signature key %q carries party %q: %w", k, s.PartyID, errs.ErrInvalidInput)
		}
	}
	for i, f := range c.files {
		if f.ID == "" {
			return fmt.Errorf("file[%d]: empty id: %w", i, errs.ErrInvalidInput)
		}
	}
	if c.startTime != nil && c.endTime != nil && c.endTime.Before(*c.startTime) {
		return fmt.Errorf("end time before start time: %w", errs.ErrInvalidInput)
	}
	return nil
}

// commit is the single mutation step: it computes the new audit timestamp,
// applies fn with it and records it as updatedAt. The timestamp strictly
// increases even when the clock has not advanced since the last mutation.
func (c *Contract) commit(fn func(at time.Time)) {
	at := c.clock().UTC()
	if !at.After(c.updatedAt) {
		at = c.updatedAt.Add(time.Nanosecond)
	}
	fn(at)
	c.updatedAt = at
}

// UpdateStatus sets a new status. Any defined status may follow any other;
// an undefined value returns ErrInvalidStatus and leaves the contract unchanged.
func (c *Contract) UpdateStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("update status to %q: %w", s, errs.ErrInvalidStatus)
	}
	c.commit(func(time.Time) { c.status = s })
	return nil
}

// AddParty appends a party, keeping insertion order. Party ids are unique.
func (c *Contract) AddParty(p Party) error {
	if p.ID == "" {
		return fmt.Errorf("add party: empty id: %w", errs.ErrInvalidInput)
	}
	if _, dup := c.partyIndex[p.ID]; dup {
		return fmt.Errorf("add party %q: %w", p.ID, errs.ErrDuplicateParty)
	}
	c.commit(func(time.Time) {
		c.partyIndex[p.ID] = len(c.parties)
		c.parties = append(c.parties, p)
	})
	return nil
}

// AddSignature records the signature of an existing party, stamping SignedAt.
// Signing again replaces the previous signature of that party.
func (c *Contract) AddSignature(partyID string, sig Signature) error {
	if _, ok := c.partyIndex[partyID]; !ok {
		return fmt.Errorf("add signature for %q: %w", partyID, errs.ErrPartyNotFound)
	}
	c.commit(func(at time.Time) {
		sig.PartyID = partyID
		sig.SignedAt = at
		c.signatures[partyID] = sig
	})
	return nil
}

// AddFile appends an attached file, defaulting UploadedAt to now.
func (c *Contract) AddFile(f File) error {
	if f.ID == "" {
		return fmt.Errorf("add file: empty id: %w", errs.ErrInvalidInput)
	}
	c.commit(func(at time.Time) {
		if f.UploadedAt.IsZero() {
			f.UploadedAt = at
		}
		f.UploadedAt = f.UploadedAt.UTC()
		c.files = append(c.files, f)
	})
	return nil
}

// SetMetadata stores an auxiliary value; the core never interprets it.
func (c *Contract) SetMetadata(key string, value any) {
	c.commit(func(time.Time) { c.metadata[key] = value })
}

// IsFullySigned reports whether every signatory party has signed.
func (c *Contract) IsFullySigned() bool { return c.FullySignedUnder(SignatoriesOnly) }

// FullySignedUnder evaluates completeness under the given rule.
// A contract with no required signers is vacuously fully signed.
func (c *Contract) FullySignedUnder(rule SigningRule) bool {
	for _, p := range c.parties {
		if rule != AllParties && !p.IsSignatory {
			continue
		}
		if _, ok := c.signatures[p.ID]; !ok {
			return false
		}
	}
	return true
}

// PendingSignatories returns signatory parties that have not signed yet, in order.
func (c *Contract) PendingSignatories() []Party {
	var out []Party
	for _, p := range c.parties {
		if !p.IsSignatory {
			continue
		}
		if _, ok := c.signatures[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// IsExpired reports whether the contract is expired by status or by its end time.
// The second condition can hold while the stored status is still active.
func (c *Contract) IsExpired() bool { return c.ExpiredAt(c.clock()) }

// ExpiredAt is IsExpired evaluated at t.
func (c *Contract) ExpiredAt(t time.Time) bool {
	if c.status == StatusExpired {
		return true
	}
	return c.endTime != nil && c.endTime.Before(t)
}

// ID returns the contract id.
func (c *Contract) ID() string { return c.id }

// ContractNumber returns the human-facing contract number.
func (c *Contract) ContractNumber() string { return c.number }

// Title returns the agreement title.
func (c *Contract) Title() string { return c.title }

// Content returns the agreement text.
func (c *Contract) Content() string { return c.content }

// Status returns the stored lifecycle status.
func (c *Contract) Status() Status { return c.status }

// Type returns the contract type.
func (c *Contract) Type() Type { return c.typ }

// StartTime returns the start of the validity window, if set.
func (c *Contract) StartTime() *time.Time { return utcPtr(c.startTime) }

// EndTime returns the end of the validity window, if set.
func (c *Contract) EndTime() *time.Time { return utcPtr(c.endTime) }

// CreatedAt returns when the contract was created.
func (c *Contract) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the time of the last committed change.
func (c *Contract) UpdatedAt() time.Time { return c.updatedAt }

// Parties returns a copy of the parties in insertion order.
func (c *Contract) Parties() []Party { return append([]Party{}, c.parties...) }

// Party looks up a party by id.
func (c *Contract) Party(id string) (Party, bool) {
	i, ok := c.partyIndex[id]
	if !ok {
		return Party{}, false
	}
	return c.parties[i], true
}

// Signature looks up the signature recorded for a party.
func (c *Contract) Signature(partyID string) (Signature, bool) {
	s, ok := c.signatures[partyID]
	return s, ok
}

// Signatures returns a copy of the party-id -> signature mapping.
func (c *Contract) Signatures() map[string]Signature {
	out := make(map[string]Signature, len(c.signatures))
	for k, v := range c.signatures {
		out[k] = v
	}
	return out
}

// Files returns a copy of the attached files in insertion order.
func (c *Contract) Files() []File { return append([]File{}, c.files...) }

// Metadata returns a shallow copy of the auxiliary metadata.
func (c *Contract) Metadata() map[string]any {
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Record returns a detached snapshot of the contract.
func (c *Contract) Record() Record {
	return Record{
		ID:             c.id,
		ContractNumber: c.number,
		Title:          c.title,
		Content:        c.content,
		Status:         c.status,
		Type:           c.typ,
		StartTime:      utcPtr(c.startTime),
		EndTime:        utcPtr(c.endTime),
		Parties:        c.Parties(),
		SignatureInfo:  c.Signatures(),
		Files:          c.Files(),
		Metadata:       c.Metadata(),
		CreatedAt:      c.createdAt,
		UpdatedAt:      c.updatedAt,
	}
}

// MarshalJSON encodes the contract as its Record.
func (c *Contract) MarshalJSON() ([]byte, error) { return json.Marshal(c.Record()) }

// UnmarshalJSON decodes a Record and constructs the contract from it, like New.
func (c *Contract) UnmarshalJSON(b []byte) error {
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	var opts []Option
	if c.clock != nil {
		opts = append(opts, WithClock(c.clock))
	}
	*c = *New(rec, opts...)
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
