package core

import (
	"context"
	"errors"
	"sort"

	"designcore/pkg/domain"
)

// RoleValidator decides whether a role name may be attached to a module or
// feature.
type RoleValidator interface {
	IsValidRole(ctx context.Context, name string, usage domain.RoleType) (bool, error)
}

// DefaultModuleRoles are the functional roles a module may carry.
var DefaultModuleRoles = []string{
	"TRANSCRIPTION",
	"TRANSLATION",
	"EXPRESSION",
	"COMPARTMENTALIZATION",
	"LOCALIZATION",
	"SENSOR",
	"REPORTER",
	"ACTIVATION",
	"REPRESSION",
}

// DefaultFeatureRoles are common sequence feature roles.
var DefaultFeatureRoles = []string{
	"PROMOTER",
	"RBS",
	"CDS",
	"TERMINATOR",
	"GENE",
	"OPERATOR",
	"ORIGIN",
	"MARKER",
}

// RoleRegistry is the role vocabulary kept in the role collection.
type RoleRegistry struct {
	store domain.PersistentStore
}

// NewRoleRegistry returns a registry over store.
func NewRoleRegistry(store domain.PersistentStore) *RoleRegistry {
	return &RoleRegistry{store: store}
}

// IsValidRole implements RoleValidator. Matching ignores case.
func (r *RoleRegistry) IsValidRole(ctx context.Context, name string, usage domain.RoleType) (bool, error) {
	name = domain.NormalizeRole(name)
	if name == "" {
		return false, nil
	}
	var ok bool
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		for _, role := range v.FindRoles(domain.Active(domain.EqFold("name", name))) {
			if role.Allows(usage) {
				ok = true
				return nil
			}
		}
		return nil
	})
	return ok, err
}

// CreateRole adds a role. Duplicate names fail with domain.ErrConflict.
func (r *RoleRegistry) CreateRole(ctx context.Context, name string, types ...domain.RoleType) (domain.Role, error) {
	for _, t := range types {
		if t != domain.RoleTypeModule && t != domain.RoleTypeFeature {
			return domain.Role{}, domain.InvalidArgumentf("unknown role type %q", t)
		}
	}
	var created domain.Role
	_, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.InsertRole(domain.Role{Name: name, Types: append([]domain.RoleType{}, types...)})
		return err
	})
	return created, err
}

// ListRoles returns active roles sorted by name.
func (r *RoleRegistry) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		roles = v.FindRoles(domain.Active())
		return nil
	})
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, err
}

// SeedDefaultRoles installs the default vocabulary, skipping names already
// present. It returns the number of roles created.
func (r *RoleRegistry) SeedDefaultRoles(ctx context.Context) (int, error) {
	seeds := make([]domain.Role, 0, len(DefaultModuleRoles)+len(DefaultFeatureRoles))
	for _, name := range DefaultModuleRoles {
		seeds = append(seeds, domain.Role{Name: name, Types: []domain.RoleType{domain.RoleTypeModule}})
	}
	for _, name := range DefaultFeatureRoles {
		seeds = append(seeds, domain.Role{Name: name, Types: []domain.RoleType{domain.RoleTypeFeature}})
	}
	created := 0
	_, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created = 0
		for _, seed := range seeds {
			if _, err := tx.InsertRole(seed); err != nil {
				if errors.Is(err, domain.ErrConflict) {
					continue
				}
				return err
			}
			created++
		}
		return nil
	})
	return created, err
}

// CreateRole registers a new role name.
func (s *Service) CreateRole(ctx context.Context, actor Actor, name string, types ...domain.RoleType) (domain.Role, error) {
	var created domain.Role
	err := s.run(ctx, "create_role", actor, func(ctx context.Context) (string, error) {
		var err error
		created, err = s.registry.CreateRole(ctx, name, types...)
		return created.ID, storeError("create role", err)
	})
	return created, err
}

// ListRoles returns the active role vocabulary.
func (s *Service) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := s.run(ctx, "list_roles", Actor{}, func(ctx context.Context) (string, error) {
		var err error
		roles, err = s.registry.ListRoles(ctx)
		return "", storeError("list roles", err)
	})
	return roles, err
}

// SeedDefaultRoles installs the default role vocabulary.
func (s *Service) SeedDefaultRoles(ctx context.Context, actor Actor) (int, error) {
	var n int
	err := s.run(ctx, "seed_roles", actor, func(ctx context.Context) (string, error) {
		var err error
		n, err = s.registry.SeedDefaultRoles(ctx)
		return "", storeError("seed roles", err)
	})
	return n, err
}

// checkRole fails with domain.ErrInvalidArgument unless name is a known
// role for usage.
func (s *Service) checkRole(ctx context.Context, name string, usage domain.RoleType) error {
	if domain.NormalizeRole(name) == "" {
		return domain.InvalidArgumentf("role is required")
	}
	ok, err := s.roles.IsValidRole(ctx, name, usage)
	if err != nil {
		return storeError("role lookup", err)
	}
	if !ok {
		return domain.InvalidArgumentf("unknown %s role %q", usage, domain.NormalizeRole(name))
	}
	return nil
}
