package model

import (
	"fmt"
	"strings"

	"elearn-settlement/internal/domain"
)

type SubjectKind string

const (
	SubjectCourse SubjectKind = "course"
	SubjectEvent  SubjectKind = "event"
)

func ParseSubjectKind(s string) (SubjectKind, error) {
	switch SubjectKind(strings.ToLower(s)) {
	case SubjectCourse:
		return SubjectCourse, nil
	case SubjectEvent:
		return SubjectEvent, nil
	default:
		return "", fmt.Errorf("%w: unknown subject kind %q", domain.ErrInvalidArgument, s)
	}
}

// SubjectRef is a tagged reference to a purchasable entity. Subjects live in
// the catalog services; the settlement core only carries the reference.
type SubjectRef struct {
	Kind SubjectKind
	ID   string
}

func (r SubjectRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

func (r SubjectRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// SubjectInfo is what a catalog resolver returns for a SubjectRef.
type SubjectInfo struct {
	Title      string
	FinalPrice int64 // minor currency units; <= 0 means free
	Currency   string
	OwnerID    string // instructor / event creator, for earnings reporting
}

func (s SubjectInfo) IsFree() bool { return s.FinalPrice <= 0 }
