package records

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/foundry"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/auth"
)

// UsernameHeader carries an externally-propagated username for callers
// fronted by another gateway hop.
const UsernameHeader = "X-Atlas-Username"

// patientContextKey memoizes the resolved PatientContext on the echo
// context for the lifetime of one request.
const patientContextKey = "patient_context"

// Profile is a platform-side profile record, untyped because the profile
// ontology shares the schema drift of every other object type.
type Profile map[string]interface{}

// ProfileLookup consults the platform for a profile matching an identity
// candidate. A nil Profile with nil error means no match.
type ProfileLookup interface {
	LookupProfile(ctx context.Context, identifier string) (Profile, error)
}

// CandidateKind names one slot in the identity candidate priority order.
type CandidateKind string

const (
	CandidateSubject        CandidateKind = "subject"
	CandidateOverride       CandidateKind = "override"
	CandidateUsernameHeader CandidateKind = "username-header"
	CandidatePreferredName  CandidateKind = "preferred_username"
	CandidateNickname       CandidateKind = "nickname"
	CandidateEmail          CandidateKind = "email"
)

// DefaultOrder is the candidate priority for clinical read endpoints: the
// verified subject always outranks a caller-supplied override.
var DefaultOrder = []CandidateKind{
	CandidateSubject,
	CandidateOverride,
	CandidateUsernameHeader,
	CandidatePreferredName,
	CandidateNickname,
	CandidateEmail,
}

// OverrideFirstOrder is the liberal priority used by the profile-search
// endpoint, where an explicit override is the caller's intent.
var OverrideFirstOrder = []CandidateKind{
	CandidateOverride,
	CandidateSubject,
	CandidateUsernameHeader,
	CandidatePreferredName,
	CandidateNickname,
	CandidateEmail,
}

// profileIDFields are probed, in order, to extract the platform record
// identifier from a matched profile.
var profileIDFields = []string{"userId", "user_id", "patientId", "atlasId", "id"}

// candidate pairs an identity string with the source it came from.
type candidate struct {
	value  string
	source Source
}

// Resolver maps an authenticated request onto the single platform record
// identifier its caller corresponds to.
type Resolver struct {
	lookup ProfileLookup
	order  []CandidateKind
	logger zerolog.Logger
}

// NewResolver builds a Resolver with the given candidate priority order;
// a nil order falls back to DefaultOrder. lookup may be nil when no
// platform profile ontology is configured.
func NewResolver(lookup ProfileLookup, order []CandidateKind, logger zerolog.Logger) *Resolver {
	if order == nil {
		order = DefaultOrder
	}
	return &Resolver{lookup: lookup, order: order, logger: logger}
}

// Resolve determines the caller's platform record identifier. The result
// is memoized on the echo context: repeat calls within one request return
// the first resolution without re-consulting the platform.
func (r *Resolver) Resolve(c echo.Context, override string, allowOverride bool) (*PatientContext, error) {
	if pc, ok := c.Get(patientContextKey).(*PatientContext); ok {
		return pc, nil
	}

	subject, _ := c.Get("auth_subject").(string)
	claims := auth.ClaimsFromContext(c)
	usernameHeader := c.Request().Header.Get(UsernameHeader)

	pc, err := r.resolve(c.Request().Context(), subject, claims, usernameHeader, override, allowOverride)
	if err != nil {
		return nil, err
	}
	c.Set(patientContextKey, pc)
	return pc, nil
}

func (r *Resolver) resolve(ctx context.Context, subject string, claims *auth.Claims, usernameHeader, override string, allowOverride bool) (*PatientContext, error) {
	// A platform-native subject is authoritative: no profile lookup needed.
	if foundry.IsNativeSubject(subject) {
		return &PatientContext{
			ResolvedID:        subject,
			MatchedIdentifier: subject,
			Source:            SourceSubjectClaim,
		}, nil
	}

	candidates := r.candidates(subject, claims, usernameHeader, override, allowOverride)
	if len(candidates) == 0 {
		return nil, ErrMissingIdentity
	}

	// Profile lookup: first candidate with a platform profile wins. A
	// failed lookup for one candidate is logged and the loop continues.
	if r.lookup != nil {
		for _, cand := range candidates {
			profile, err := r.lookup.LookupProfile(ctx, cand.value)
			if err != nil {
				r.logger.Warn().
					Err(err).
					Str("candidate", cand.value).
					Msg("profile lookup failed, trying next candidate")
				continue
			}
			if profile == nil {
				continue
			}
			return &PatientContext{
				ResolvedID:          extractProfileID(profile, cand.value),
				MatchedIdentifier:   cand.value,
				Source:              SourcePlatformProfile,
				LookedUpViaPlatform: true,
			}, nil
		}
	}

	// No profile matched: fall back through the remaining sources.
	if subject != "" {
		return &PatientContext{ResolvedID: subject, MatchedIdentifier: subject, Source: SourceSubjectClaim}, nil
	}
	if allowOverride && override != "" {
		return &PatientContext{ResolvedID: override, MatchedIdentifier: override, Source: SourceQueryOverride}, nil
	}
	first := candidates[0]
	return &PatientContext{ResolvedID: first.value, MatchedIdentifier: first.value, Source: SourceUsernameClaim}, nil
}

// candidates builds the ordered, de-duplicated identity candidate list.
func (r *Resolver) candidates(subject string, claims *auth.Claims, usernameHeader, override string, allowOverride bool) []candidate {
	var list []candidate
	seen := make(map[string]bool)

	add := func(value string, source Source) {
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		list = append(list, candidate{value: value, source: source})
	}

	for _, kind := range r.order {
		switch kind {
		case CandidateSubject:
			add(subject, SourceSubjectClaim)
		case CandidateOverride:
			if allowOverride {
				add(override, SourceQueryOverride)
			}
		case CandidateUsernameHeader:
			add(usernameHeader, SourceUsernameClaim)
		case CandidatePreferredName:
			if claims != nil {
				add(claims.PreferredUsername, SourceUsernameClaim)
			}
		case CandidateNickname:
			if claims != nil {
				add(claims.Nickname, SourceUsernameClaim)
			}
		case CandidateEmail:
			if claims != nil {
				add(claims.Email, SourceUsernameClaim)
			}
		}
	}
	return list
}

// extractProfileID pulls the platform record identifier out of a matched
// profile, falling back to the candidate itself when the profile carries
// none of the known identifier fields.
func extractProfileID(profile Profile, fallback string) string {
	props, _ := profile["properties"].(map[string]interface{})
	for _, field := range profileIDFields {
		if props != nil {
			if id, ok := props[field].(string); ok && id != "" {
				return id
			}
		}
		if id, ok := profile[field].(string); ok && id != "" {
			return id
		}
	}
	return fallback
}
