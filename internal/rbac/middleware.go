package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stocknest/stocknest/internal/audit"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
	"github.com/stocknest/stocknest/internal/token"
)

// Resolver loads a subject's grants from the authorization store.
// Implementations must not cache: revocation takes effect on the next request.
type Resolver interface {
	Roles(ctx context.Context, subject string) ([]string, error)
	Permissions(ctx context.Context, subject string) ([]string, error)
	StoreIDs(ctx context.Context, subject string) ([]int64, error)
}

// CheckFunc decides whether an authenticated identity may proceed and
// enriches it on success. A nil return allows the request; a returned error
// wrapping shared.ErrForbidden denies it, and one wrapping
// shared.ErrResolution signals the store was unreachable.
type CheckFunc func(ctx context.Context, id *shared.Identity) error

// Guard wires request-time authorization for HTTP handlers. Every guard runs
// token validation before any grant lookup, so a bad credential costs no
// store round-trip and yields 401 rather than 403.
type Guard struct {
	Validator *token.Validator
	Resolver  Resolver
	Logger    *slog.Logger
	Audit     audit.Recorder
}

// RequireRole allows callers holding at least one of the named roles.
func (g Guard) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	want := normalize(allowed)
	return g.wrap(func(ctx context.Context, id *shared.Identity) error {
		roles, err := g.Resolver.Roles(ctx, id.Subject)
		if err != nil {
			return err
		}
		if !intersects(roles, want) {
			g.logDenied(id.Subject, "role", want, roles)
			return fmt.Errorf("insufficient permissions, required roles: %s: %w", strings.Join(allowed, ", "), shared.ErrForbidden)
		}
		storeIDs, err := g.Resolver.StoreIDs(ctx, id.Subject)
		if err != nil {
			return err
		}
		id.Roles = roles
		id.StoreIDs = storeIDs
		return nil
	})
}

// RequirePermission allows callers granted every one of the required keys.
func (g Guard) RequirePermission(required ...string) func(http.Handler) http.Handler {
	want := normalize(required)
	return g.wrap(func(ctx context.Context, id *shared.Identity) error {
		granted, err := g.Resolver.Permissions(ctx, id.Subject)
		if err != nil {
			return err
		}
		if missing := subtract(want, granted); len(missing) > 0 {
			g.logDenied(id.Subject, "permission", want, granted)
			return fmt.Errorf("insufficient permissions, required: %s: %w", strings.Join(missing, ", "), shared.ErrForbidden)
		}
		roles, err := g.Resolver.Roles(ctx, id.Subject)
		if err != nil {
			return err
		}
		storeIDs, err := g.Resolver.StoreIDs(ctx, id.Subject)
		if err != nil {
			return err
		}
		id.Roles = roles
		id.Permissions = granted
		id.StoreIDs = storeIDs
		return nil
	})
}

// Authenticate validates the credential and stores the minimal identity in
// context without any role or permission requirement.
func (g Guard) Authenticate(next http.Handler) http.Handler {
	return g.wrap(nil)(next)
}

// wrap turns a check into middleware: validate the token, run the check with
// the resolved identity, attach the enriched identity to the context.
func (g Guard) wrap(check CheckFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Validator.ValidateRequest(r)
			if err != nil {
				g.record(r, audit.Event{Action: audit.ActionAuthFailed, Path: r.URL.Path})
				httpx.RespondError(w, err)
				return
			}
			if check != nil {
				if err := check(r.Context(), &id); err != nil {
					g.record(r, audit.Event{Subject: id.Subject, Action: audit.ActionAccessDenied, Path: r.URL.Path})
					httpx.RespondError(w, err)
					return
				}
			}
			ctx := shared.ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g Guard) record(r *http.Request, event audit.Event) {
	if g.Audit == nil {
		return
	}
	g.Audit.Record(r.Context(), event)
}

// logDenied keeps the full required-vs-actual diagnostic out of the wire
// response and in the log.
func (g Guard) logDenied(subject, kind string, required, actual []string) {
	if g.Logger == nil {
		return
	}
	g.Logger.Warn("access denied",
		slog.String("subject", subject),
		slog.String("check", kind),
		slog.Any("required", required),
		slog.Any("actual", actual),
	)
}

func normalize(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, seen := unique[v]; seen {
			continue
		}
		unique[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func intersects(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[v] = struct{}{}
	}
	for _, v := range want {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func subtract(want, have []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[v] = struct{}{}
	}
	var missing []string
	for _, v := range want {
		if _, ok := set[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
