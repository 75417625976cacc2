package records

import (
	"context"

	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/foundry"
)

// ProfileObjectType is the ontology object type holding caller profiles.
const ProfileObjectType = "Profiles"

// profileMatchFields are the profile fields an identity candidate may
// match on, covering the same schema drift as the identity filter.
var profileMatchFields = []string{"userId", "user_id", "username", "email"}

// FoundryProfileLookup resolves identity candidates against the profile
// ontology through a foundry transport.
type FoundryProfileLookup struct {
	transport foundry.Transport
}

// NewFoundryProfileLookup builds a lookup over the given transport.
func NewFoundryProfileLookup(transport foundry.Transport) *FoundryProfileLookup {
	return &FoundryProfileLookup{transport: transport}
}

// LookupProfile searches for a profile matching the candidate on any of
// the known match fields. A clean empty page is a no-match, not an error.
func (l *FoundryProfileLookup) LookupProfile(ctx context.Context, identifier string) (Profile, error) {
	clauses := make([]*foundry.Filter, 0, len(profileMatchFields))
	for _, field := range profileMatchFields {
		clauses = append(clauses, foundry.Eq(field, identifier))
	}

	body, err := l.transport.Search(ctx, ProfileObjectType, foundry.SearchRequest{
		Where:    foundry.Or(clauses...),
		PageSize: 1,
	})
	if err != nil {
		return nil, err
	}

	matches := ExtractRecords(body)
	if len(matches) == 0 {
		return nil, nil
	}
	return Profile(matches[0]), nil
}
