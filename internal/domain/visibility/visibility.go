// Package visibility decides which presence records an actor may observe.
// Narrowing to a single counterpart once a negotiation begins is both a
// privacy control and a concurrency control: it stops a client from issuing
// overlapping commands against multiple counterparts, which the store cannot
// prevent transactionally.
package visibility

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
)

// Context is the local actor's negotiation/engagement phase, the input the
// filter is evaluated against for every candidate record.
type Context struct {
	Role       presence.Role
	Identity   string
	SessionKey string

	// RequestTargetKey is set on the requester side while a request with
	// status pending/accepted/awaiting_settlement is outstanding. It narrows
	// the candidate set to exactly that provider.
	RequestTargetKey string

	// CounterpartIdentity is set on the provider side by an inbound request
	// or a live engagement. Without one, a provider sees no candidates.
	CounterpartIdentity string
}

// Visible reports whether the candidate record may be surfaced to the local
// actor. Self records are always visible; they are rendered distinctly by
// the consumer.
func Visible(vc Context, rec presence.Record) bool {
	if rec.Validate() != nil {
		return false
	}
	if rec.BelongsTo(vc.Identity, vc.SessionKey) {
		return true
	}

	switch vc.Role {
	case presence.RoleRequester:
		if rec.Role != presence.RoleProvider {
			return false
		}
		if vc.RequestTargetKey != "" {
			return rec.SessionKey == vc.RequestTargetKey || rec.Identity == vc.RequestTargetKey
		}
		return rec.Available

	case presence.RoleProvider:
		if vc.CounterpartIdentity == "" {
			return false
		}
		return rec.Identity == vc.CounterpartIdentity || rec.SessionKey == vc.CounterpartIdentity

	default:
		// Observers get read-only awareness at most; no actionable candidates.
		return false
	}
}

// Screen evaluates an operator-configured expression against a candidate
// before the browsing rule admits it, e.g.
// "available == true && rating >= 4". An empty expression admits everything.
// The profile may be nil when the candidate has no stored profile.
func Screen(expression string, rec presence.Record, profile *identity.Profile) (bool, error) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return true, nil
	}

	params := map[string]interface{}{
		"role":        string(rec.Role),
		"name":        rec.DisplayName,
		"available":   rec.Available,
		"lat":         rec.Position.Lat,
		"lng":         rec.Position.Lng,
		"rating":      0.0,
		"ratingCount": 0,
		"category":    "",
	}
	if profile != nil {
		params["rating"] = profile.Rating
		params["ratingCount"] = profile.RatingCount
		if profile.Category != nil {
			params["category"] = *profile.Category
		}
	}

	parsed, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return false, err
	}
	result, err := parsed.Evaluate(params)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, errors.New("screen expression did not evaluate to boolean")
	}
	return b, nil
}
