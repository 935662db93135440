// Package api implements the HTTP surface of the search service.
package api

import (
	"net/http"
)

const (
	defaultTenant = "t_demo"
	defaultRole   = "admin"
)

type Principal struct {
	Tenant string
	Role   string // admin or viewer
}

// getPrincipal reads the tenant and role headers. Missing values fall back
// to the demo tenant with the admin role.
func getPrincipal(r *http.Request) Principal {
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = defaultTenant
	}
	role := r.Header.Get("X-Role")
	if role == "" {
		role = defaultRole
	}
	return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }
