package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Role represents an access role on the key-value API
type Role string

const (
	RoleAdmin Role = "admin"
	RoleWrite Role = "write"
	RoleRead  Role = "read"
)

// roleRank orders roles so a stronger role implies the weaker ones
var roleRank = map[Role]int{
	RoleRead:  1,
	RoleWrite: 2,
	RoleAdmin: 3,
}

// User represents an authenticated API client
type User struct {
	ID        string
	Roles     []Role
	APIKey    string
	CreatedAt time.Time
	LastUsed  time.Time
}

// HasRole reports whether the user holds a role at least as strong as r
func (u *User) HasRole(r Role) bool {
	need := roleRank[r]
	for _, role := range u.Roles {
		if roleRank[role] >= need {
			return true
		}
	}
	return false
}

// APIKeyStore defines the interface for persisting API keys
type APIKeyStore interface {
	SaveAPIKey(key string, user *User) error
	GetAPIKey(key string) (*User, error)
	DeleteAPIKey(key string) error
}

// AuthManager manages authentication and authorization
type AuthManager struct {
	mu      sync.RWMutex
	users   map[string]*User
	apiKeys map[string]*User
	store   APIKeyStore
}

// NewAuthManager creates a new authentication manager
func NewAuthManager(store APIKeyStore) *AuthManager {
	return &AuthManager{
		users:   make(map[string]*User),
		apiKeys: make(map[string]*User),
		store:   store,
	}
}

// GenerateAPIKey generates a new API key
func (am *AuthManager) GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// CreateUser creates a new user with the specified roles
func (am *AuthManager) CreateUser(id string, roles []Role) (*User, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.users[id]; exists {
		return nil, errors.New("user already exists")
	}

	apiKey, err := am.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:        id,
		Roles:     roles,
		APIKey:    apiKey,
		CreatedAt: time.Now(),
		LastUsed:  time.Now(),
	}

	am.users[id] = user
	am.apiKeys[apiKey] = user

	if err := am.store.SaveAPIKey(apiKey, user); err != nil {
		delete(am.users, id)
		delete(am.apiKeys, apiKey)
		return nil, err
	}

	return user, nil
}

// DeleteUser removes a user and revokes its API key
func (am *AuthManager) DeleteUser(id string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	user, exists := am.users[id]
	if !exists {
		return errors.New("user not found")
	}

	if err := am.store.DeleteAPIKey(user.APIKey); err != nil {
		return err
	}

	delete(am.apiKeys, user.APIKey)
	delete(am.users, id)
	return nil
}

// Authenticate authenticates a request using its API key. Browser contexts
// cannot set headers on a WebSocket dial, so the key is also accepted as a
// query parameter.
func (am *AuthManager) Authenticate(r *http.Request) (*User, error) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		apiKey = r.URL.Query().Get("api_key")
	}
	if apiKey == "" {
		return nil, errors.New("missing API key")
	}

	am.mu.RLock()
	user, exists := am.apiKeys[apiKey]
	am.mu.RUnlock()

	if !exists {
		// Try to load from store
		var err error
		user, err = am.store.GetAPIKey(apiKey)
		if err != nil {
			return nil, errors.New("invalid API key")
		}
		am.mu.Lock()
		am.apiKeys[apiKey] = user
		am.mu.Unlock()
	}

	am.mu.Lock()
	user.LastUsed = time.Now()
	am.mu.Unlock()

	return user, nil
}

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the authenticated user attached to a request context
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok
}

// AuthMiddleware enforces authentication and a minimum role
func (am *AuthManager) AuthMiddleware(required Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := am.Authenticate(r)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !user.HasRole(required) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
