// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoleAdmin is the role allowed to manage pipelines, SLA policies and to
// reopen deals sitting in a terminal stage.
const RoleAdmin = "admin"

// Identity represents the authenticated user's identity.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access user information without depending on Gin.
type Identity interface {
	// UserID returns the authenticated user's ID.
	UserID() uuid.UUID
	// TenantID returns the organization the user acts for, if any.
	TenantID() *uuid.UUID
	// Name returns the display name recorded on audit entries.
	Name() string
	// Roles returns the user's assigned roles.
	Roles() []string
	// HasRole checks if the user has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the user is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	tenantID      *uuid.UUID
	name          string
	roles         []string
	authenticated bool
}

func (i *identity) UserID() uuid.UUID    { return i.userID }
func (i *identity) TenantID() *uuid.UUID { return i.tenantID }
func (i *identity) Roles() []string      { return i.roles }
func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

func (i *identity) Name() string {
	if i.name == "" {
		return i.userID.String()
	}
	return i.name
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var roleList []string
	if roles, rolesOK := c.Get(ContextRolesKey); rolesOK {
		roleList, _ = roles.([]string)
	}

	var tenant *uuid.UUID
	if raw, ok := c.Get(ContextTenantIDKey); ok {
		if id, ok := raw.(uuid.UUID); ok {
			tenant = &id
		}
	}

	return &identity{
		userID:        uid,
		tenantID:      tenant,
		name:          c.GetString(ContextUserNameKey),
		roles:         roleList,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the user is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}

// MustGetTenantID resolves the caller's tenant. Requests without one are
// rejected with 403 because every pipeline resource is tenant scoped.
func MustGetTenantID(c *gin.Context) (Identity, uuid.UUID, bool) {
	id := MustGetIdentity(c)
	if id == nil {
		return nil, uuid.UUID{}, false
	}
	tenantID := id.TenantID()
	if tenantID == nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "organization required"})
		return nil, uuid.UUID{}, false
	}
	return id, *tenantID, true
}
