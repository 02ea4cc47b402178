package adapter

import (
	"context"

	"elearn-settlement/internal/domain/model"
)

// SubjectCatalog resolves a subject reference to its price and title.
// Subjects themselves (courses, events) are owned by the catalog services;
// settlement only reads them. Returns domain.ErrNotFound for unknown
// references.
type SubjectCatalog interface {
	Resolve(ctx context.Context, ref model.SubjectRef) (*model.SubjectInfo, error)
}
