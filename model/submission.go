package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Submission is the typed view of a draft payload that finalization needs.
// Anything else in the payload is carried as opaque content.
type Submission struct {
	RegistrationType    RegistrationType `json:"registration_type"`
	TargetRecordNumber  string           `json:"target_record_number,omitempty"`
	ClientReference     string           `json:"client_reference,omitempty"`
	ReviewRequired      bool             `json:"review_required,omitempty"`
	Parties             []Party          `json:"parties,omitempty"`
	Documents           []Document       `json:"documents,omitempty"`
	OwnerGroups         []OwnerGroup     `json:"owner_groups,omitempty"`
	DeleteOwnerGroupIDs []int            `json:"delete_owner_group_ids,omitempty"`
	Location            *Location        `json:"location,omitempty"`
	Description         *Description     `json:"description,omitempty"`
	Collateral          []Collateral     `json:"collateral,omitempty"`
	DeleteCollateralIDs []int            `json:"delete_collateral_ids,omitempty"`
}

var ErrMalformedPayload = errors.New("malformed submission payload")

// DecodeSubmission reads the typed submission out of a draft payload.
func DecodeSubmission(payload map[string]interface{}) (*Submission, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: payload is empty", ErrMalformedPayload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := sub.check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &sub, nil
}

func (s *Submission) check() error {
	if !s.RegistrationType.Valid() {
		return fmt.Errorf("unknown registration type %q", s.RegistrationType)
	}
	if !s.RegistrationType.NewRecord() && s.TargetRecordNumber == "" {
		return fmt.Errorf("%s requires a target record number", s.RegistrationType)
	}
	switch s.RegistrationType {
	case RegTypeMHRegistration:
		if len(s.OwnerGroups) == 0 {
			return errors.New("at least one owner group is required")
		}
		if s.Description == nil || s.Description.Manufacturer == "" {
			return errors.New("a home description with a manufacturer is required")
		}
		if s.Location == nil {
			return errors.New("a location is required")
		}
	case RegTypeTransfer:
		if len(s.OwnerGroups) == 0 {
			return errors.New("a transfer must add at least one owner group")
		}
	case RegTypePermit:
		if s.Location == nil {
			return errors.New("a transport permit requires the new location")
		}
	case RegTypeSecurity:
		if len(s.Collateral) == 0 {
			return errors.New("at least one collateral item is required")
		}
	}
	for _, g := range s.OwnerGroups {
		if len(g.Owners) == 0 {
			return fmt.Errorf("owner group %d has no owners", g.GroupID)
		}
	}
	return nil
}
