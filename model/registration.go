package model

import (
	"fmt"
	"time"
)

type Family string

const (
	FamilyMHR Family = "MHR"
	FamilyPPR Family = "PPR"
)

type RegistrationType string

const (
	RegTypeMHRegistration RegistrationType = "MHREG"
	RegTypeTransfer       RegistrationType = "TRANS"
	RegTypeExemption      RegistrationType = "EXEMPTION"
	RegTypePermit         RegistrationType = "PERMIT"
	RegTypeSecurity       RegistrationType = "SA"
	RegTypeAmendment      RegistrationType = "AMENDMENT"
	RegTypeRenewal        RegistrationType = "RENEWAL"
	RegTypeDischarge      RegistrationType = "DISCHARGE"
)

// Target record statuses. StatusLocked is reserved for a record with a change in flight.
const (
	StatusActive     = "ACTIVE"
	StatusExempt     = "EXEMPT"
	StatusHistorical = "HISTORICAL"
	StatusLocked     = "LOCKED"
)

// Child row statuses.
const (
	ChildStatusActive   = "ACTIVE"
	ChildStatusPrevious = "PREVIOUS"
)

type registrationTypeInfo struct {
	family    Family
	newRecord bool
	// resulting target status; empty means restore the pre-lock status
	resultStatus string
}

var registrationTypes = map[RegistrationType]registrationTypeInfo{
	RegTypeMHRegistration: {family: FamilyMHR, newRecord: true, resultStatus: StatusActive},
	RegTypeTransfer:       {family: FamilyMHR},
	RegTypeExemption:      {family: FamilyMHR, resultStatus: StatusExempt},
	RegTypePermit:         {family: FamilyMHR},
	RegTypeSecurity:       {family: FamilyPPR, newRecord: true, resultStatus: StatusActive},
	RegTypeAmendment:      {family: FamilyPPR},
	RegTypeRenewal:        {family: FamilyPPR},
	RegTypeDischarge:      {family: FamilyPPR, resultStatus: StatusHistorical},
}

func (t RegistrationType) Valid() bool {
	_, ok := registrationTypes[t]
	return ok
}

func (t RegistrationType) Family() Family {
	return registrationTypes[t].family
}

// NewRecord reports whether the type creates a new target record instead of changing one.
func (t RegistrationType) NewRecord() bool {
	return registrationTypes[t].newRecord
}

// ResultingStatus is the target status once a registration of this type commits.
func (t RegistrationType) ResultingStatus(prior string) string {
	if s := registrationTypes[t].resultStatus; s != "" {
		return s
	}
	if prior == "" || prior == StatusLocked {
		return StatusActive
	}
	return prior
}

type TargetRecord struct {
	ID           int64     `json:"-"`
	RecordNumber string    `json:"record_number"`
	Family       Family    `json:"family"`
	Status       string    `json:"status"`
	AccountID    string    `json:"account_id"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Registration struct {
	ID                 int64            `json:"-"`
	RegistrationID     int64            `json:"registration_id"`
	RegistrationNumber string           `json:"registration_number"`
	RecordNumber       string           `json:"record_number"`
	Family             Family           `json:"family"`
	RegistrationType   RegistrationType `json:"registration_type"`
	DocumentID         string           `json:"document_id"`
	DraftNumber        string           `json:"draft_number"`
	AccountID          string           `json:"account_id"`
	InvoiceID          string           `json:"invoice_id"`
	ClientReference    string           `json:"client_reference,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`

	Parties     []Party      `json:"parties,omitempty"`
	Documents   []Document   `json:"documents,omitempty"`
	OwnerGroups []OwnerGroup `json:"owner_groups,omitempty"`
	Locations   []Location   `json:"locations,omitempty"`
	Description *Description `json:"description,omitempty"`
	Collateral  []Collateral `json:"collateral,omitempty"`
}

type Party struct {
	PartyType    string `json:"party_type"`
	BusinessName string `json:"business_name,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	GroupID      int    `json:"group_id,omitempty"`
}

type Document struct {
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`
	Description  string `json:"description,omitempty"`
}

type OwnerGroup struct {
	GroupID     int     `json:"group_id"`
	TenancyType string  `json:"tenancy_type"`
	Interest    string  `json:"interest,omitempty"`
	Status      string  `json:"status"`
	Owners      []Party `json:"owners"`
}

type Location struct {
	LocationType string `json:"location_type"`
	Address      string `json:"address"`
	ParkName     string `json:"park_name,omitempty"`
	Status       string `json:"status"`
}

type Description struct {
	Manufacturer  string   `json:"manufacturer"`
	Model         string   `json:"model,omitempty"`
	YearMade      int      `json:"year_made,omitempty"`
	SerialNumbers []string `json:"serial_numbers,omitempty"`
}

type Collateral struct {
	CollateralID int    `json:"collateral_id"`
	Kind         string `json:"kind"`
	Description  string `json:"description"`
	SerialNumber string `json:"serial_number,omitempty"`
	Status       string `json:"status"`
}

// Children holds the family-specific state of a target record that a change
// registration may supersede.
type Children struct {
	OwnerGroups []OwnerGroup `json:"owner_groups,omitempty"`
	Locations   []Location   `json:"locations,omitempty"`
	Collateral  []Collateral `json:"collateral,omitempty"`
}

// Snapshot is the state of a target just before it was locked.
type Snapshot struct {
	Target      TargetRecord `json:"target"`
	PriorStatus string       `json:"prior_status"`
	Children    Children     `json:"children"`
}

// Projection splits the registration outcome into current and previous subsets
// for downstream report generation.
type Projection struct {
	Registration *Registration `json:"registration"`
	Current      Children     `json:"current"`
	Previous     Children     `json:"previous"`
}

// RegistrationCommit is everything finalization persists in one transaction.
type RegistrationCommit struct {
	Registration *Registration
	Draft        *Draft
	// state the draft must still be in for the commit to apply
	DraftFrom DraftState
	Target    *TargetRecord
	// true when Target must be inserted rather than updated
	NewTarget bool
	// previous child groups/collateral ids superseded by this registration
	SupersededGroups     []int
	SupersededCollateral []int
	SupersedeLocations   bool
}

func FormatDraftNumber(n int64) string {
	return fmt.Sprintf("%s%07d", DraftBasePrefix, n)
}

func FormatRecordNumber(family Family, n int64) string {
	if family == FamilyPPR {
		return fmt.Sprintf("%06dB", n)
	}
	return fmt.Sprintf("%06d", n)
}

func FormatRegistrationNumber(family Family, n int64) string {
	if family == FamilyPPR {
		return fmt.Sprintf("%07dR", n)
	}
	return fmt.Sprintf("%07dM", n)
}

func FormatDocumentID(n int64) string {
	return fmt.Sprintf("%08d", n)
}
