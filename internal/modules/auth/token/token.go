package token

import (
	"context"
	"sort"
	"time"

	"github.com/oa-space/admin-core/internal/models"
	jwtpkg "github.com/oa-space/admin-core/internal/pkg/jwt"
)

// PermissionResolver maps a role set to the allowed route paths those roles
// grant. Implemented against the durable store; fakes in tests.
type PermissionResolver interface {
	ResolvePaths(ctx context.Context, roles []string) ([]string, error)
}

// Issuer builds signed bearer tokens carrying identity, role and permission
// claims. Issuing has no session side effect; callers persist the token as
// the new active session themselves.
type Issuer struct {
	resolver PermissionResolver
	ttl      time.Duration
}

func NewIssuer(resolver PermissionResolver, ttl time.Duration) *Issuer {
	return &Issuer{resolver: resolver, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for the user. firstLogin marks accounts that have
// never logged in before.
func (i *Issuer) Issue(ctx context.Context, user *models.UserModel, firstLogin bool) (string, error) {
	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, r.Name)
	}
	sort.Strings(roles)

	paths, err := i.resolver.ResolvePaths(ctx, roles)
	if err != nil {
		return "", err
	}

	claims := jwtpkg.Claims{
		UserID:      user.ID,
		Name:        user.Name,
		Mail:        user.Mail,
		Agreement:   user.AgreementAccepted,
		FirstLogin:  firstLogin,
		Roles:       roles,
		Permissions: dedupeSorted(paths),
	}
	return jwtpkg.Sign(claims, i.ttl)
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
