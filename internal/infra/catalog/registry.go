// Package catalog resolves subject references against the catalog services'
// tables. Each subject kind has its own resolver; the registry dispatches on
// the tagged kind.
package catalog

import (
	"context"
	"fmt"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/adapter"
)

// Resolver looks up one subject kind by ID.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*model.SubjectInfo, error)
}

var _ adapter.SubjectCatalog = (*Registry)(nil)

type Registry struct {
	resolvers map[model.SubjectKind]Resolver
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[model.SubjectKind]Resolver)}
}

func (r *Registry) Register(kind model.SubjectKind, res Resolver) {
	r.resolvers[kind] = res
}

func (r *Registry) Resolve(ctx context.Context, ref model.SubjectRef) (*model.SubjectInfo, error) {
	res, ok := r.resolvers[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no resolver for subject kind %q", domain.ErrInvalidArgument, ref.Kind)
	}
	return res.Resolve(ctx, ref.ID)
}
