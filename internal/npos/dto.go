package npos

import "github.com/google/uuid"

// NPOUpdate lists the NPO fields a caller may change. Accumulators and the
// verification flag are not part of it.
type NPOUpdate struct {
	Name               *string
	Description        *string
	Email              *string
	Website            *string
	RegistrationNumber *string
	LedgerAddress      *string
}

func (u NPOUpdate) columns() map[string]any {
	values := map[string]any{}
	if u.Name != nil {
		values["name"] = *u.Name
	}
	if u.Description != nil {
		values["description"] = *u.Description
	}
	if u.Email != nil {
		values["email"] = *u.Email
	}
	if u.Website != nil {
		values["website"] = *u.Website
	}
	if u.RegistrationNumber != nil {
		values["registration_number"] = *u.RegistrationNumber
	}
	if u.LedgerAddress != nil {
		values["ledger_address"] = *u.LedgerAddress
	}
	return values
}

type CreateInput struct {
	Name               string
	Description        *string
	Email              string
	Website            *string
	RegistrationNumber *string
	LedgerAddress      string
	OwnerID            *uuid.UUID
}
