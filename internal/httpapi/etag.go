package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/service"
	"github.com/google/uuid"
)

// ETagFor derives the concurrency token clients echo back via
// If-Match. It changes exactly once per successful mutation.
func ETagFor(cartID uuid.UUID, version int64) string {
	return fmt.Sprintf(`W/"%s-%d"`, cartID, version)
}

// CheckPrecondition enforces the conditional-write contract on every
// mutating endpoint: the If-Match header is mandatory and must carry
// the cart's current ETag.
func CheckPrecondition(r *http.Request, cart domain.Cart) *domain.Error {
	provided := strings.TrimSpace(r.Header.Get("If-Match"))
	if provided == "" {
		return &domain.Error{
			Kind: domain.KindPreconditionRequired,
			Msg:  "If-Match header is required on mutating requests",
		}
	}

	current := ETagFor(cart.ID, cart.Version)
	if !etagMatch(provided, current) {
		return domain.ErrPreconditionFailed(cart.Version)
	}
	return nil
}

// IfMatchVersion returns the version the request binds its mutation
// to. A wildcard If-Match opts out of version binding entirely; any
// concrete tag pins the mutation to the version it names, enforced
// again under the cart lock.
func IfMatchVersion(r *http.Request, cart domain.Cart) int64 {
	for _, candidate := range strings.Split(r.Header.Get("If-Match"), ",") {
		if strings.TrimSpace(candidate) == "*" {
			return service.VersionAny
		}
	}
	return cart.Version
}

// NotModified reports whether the If-None-Match header already names
// the current cart state, allowing a 304 on conditional GET.
func NotModified(r *http.Request, cart domain.Cart) bool {
	provided := strings.TrimSpace(r.Header.Get("If-None-Match"))
	if provided == "" {
		return false
	}
	return etagMatch(provided, ETagFor(cart.ID, cart.Version))
}

func etagMatch(header, current string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == current || candidate == "*" {
			return true
		}
		// Tolerate clients that strip the weak prefix.
		if strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(current, "W/") {
			return true
		}
	}
	return false
}
