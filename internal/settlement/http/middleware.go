package http

import (
	"net/http"
	"strings"
)

// Headers preenchidos pelo gateway após autenticar o operador.
const (
	RolesHeader = "X-User-Roles"
	UserHeader  = "X-User-Id"
)

// RequireRoles libera a rota se algum papel do header estiver em allowed.
func RequireRoles(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[strings.ToLower(a)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, role := range strings.Split(r.Header.Get(RolesHeader), ",") {
				if _, ok := set[strings.ToLower(strings.TrimSpace(role))]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			fail(w, r, http.StatusForbidden, "admin access required")
		})
	}
}
