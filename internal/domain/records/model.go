package records

import (
	"errors"
	"time"
)

// ObjectType names an ontology object type exposed by the platform.
type ObjectType string

const (
	TypeCondition    ObjectType = "Conditions"
	TypeObservation  ObjectType = "Observations"
	TypeProcedure    ObjectType = "Procedures"
	TypeImmunization ObjectType = "Immunizations"
	TypeAllergy      ObjectType = "Allergies"
	TypeClinicalNote ObjectType = "ClinicalNotes"
	TypeEncounter    ObjectType = "Encounters"
)

// ObjectTypes lists every object type the gateway serves.
var ObjectTypes = []ObjectType{
	TypeCondition,
	TypeObservation,
	TypeProcedure,
	TypeImmunization,
	TypeAllergy,
	TypeClinicalNote,
	TypeEncounter,
}

// NormalizedRecord is one ontology record reshaped onto canonical field
// names. Fields with no matching source alias are absent, never defaulted.
type NormalizedRecord map[string]interface{}

// ResultSet is a normalized page of records.
type ResultSet struct {
	Records       []NormalizedRecord `json:"records"`
	NextPageToken string             `json:"nextPageToken"`
	FetchedAt     time.Time          `json:"fetchedAt"`
}

// Source identifies how a patient identity was resolved.
type Source string

const (
	SourcePlatformProfile Source = "platform-profile"
	SourceSubjectClaim    Source = "subject-claim"
	SourceQueryOverride   Source = "query-override"
	SourceUsernameClaim   Source = "username-claim"
)

// PatientContext is the resolved output of identity resolution. It is
// computed at most once per inbound request and memoized on the request's
// echo context, never persisted beyond it.
type PatientContext struct {
	ResolvedID          string `json:"resolvedId"`
	MatchedIdentifier   string `json:"matchedIdentifier"`
	Source              Source `json:"source"`
	LookedUpViaPlatform bool   `json:"lookedUpViaPlatform"`
}

// ErrMissingIdentity is returned when no identity candidate resolved to a
// platform record. Routes treat it as a client error, not a server error.
var ErrMissingIdentity = errors.New("records: no identity candidate resolved")
