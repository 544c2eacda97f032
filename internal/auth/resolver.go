package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/db"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/repository"
)

// IdentityStore resolves the holder of a token for one role.
type IdentityStore interface {
	Lookup(ctx context.Context, id string) (Identity, error)
}

// roleStore looks users up by id restricted to a single role.
type roleStore struct {
	role  string
	users *repository.UserRepository
}

// UserStore resolves regular members.
func UserStore(users *repository.UserRepository) IdentityStore {
	return roleStore{role: db.RoleUser, users: users}
}

// AdminStore resolves administrators.
func AdminStore(users *repository.UserRepository) IdentityStore {
	return roleStore{role: db.RoleAdmin, users: users}
}

func (s roleStore) Lookup(ctx context.Context, id string) (Identity, error) {
	u, err := s.users.FindByIDAndRole(ctx, id, s.role)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, svcErr.ErrAuthenticationFailed
	} else if err != nil {
		return Identity{}, svcErr.Map(err)
	}
	return Identity{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}, nil
}

// Resolver turns a bearer token into the Identity that holds it.
type Resolver struct {
	tokens *TokenManager
	stores map[string]IdentityStore
}

// NewResolver wires the default user and admin stores on top of gdb.
func NewResolver(tokens *TokenManager, gdb *gorm.DB) *Resolver {
	users := repository.NewUserRepository(gdb)
	return &Resolver{
		tokens: tokens,
		stores: map[string]IdentityStore{
			db.RoleUser:  UserStore(users),
			db.RoleAdmin: AdminStore(users),
		},
	}
}

// Resolve verifies token and loads its holder from the store matching the
// role claim. An unknown role or a missing holder fails authentication.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}

	store, ok := r.stores[claims.Role]
	if !ok {
		return Identity{}, svcErr.ErrAuthenticationFailed
	}
	return store.Lookup(ctx, claims.ID)
}
