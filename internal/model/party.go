package model

import "encoding/json"

// Party is one signing participant (person or role) attached to a contract.
type Party struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"` // owning account; may differ from ID
	Name        string `json:"name"`
	Role        string `json:"role"` // lessor, lessee, tenant, steward, ...
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	IDCard      string `json:"idCard"`
	IsSignatory bool   `json:"isSignatory"`
	IsPrimary   bool   `json:"isPrimary"`
}

// NewParty returns a party that is required to sign.
func NewParty(id, userID, name, role string) Party {
	return Party{ID: id, UserID: userID, Name: name, Role: role, IsSignatory: true}
}

// UnmarshalJSON decodes a party record, defaulting isSignatory to true when absent.
func (p *Party) UnmarshalJSON(b []byte) error {
	type plain Party
	aux := struct {
		*plain
		IsSignatory *bool `json:"isSignatory"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.IsSignatory = aux.IsSignatory == nil || *aux.IsSignatory
	return nil
}
