package model

import "time"

// EntitlementRecord is proof that a user may access a subject (course
// enrollment, event participation). At most one record exists per
// (UserID, Subject) pair; the uniqueness is enforced by the store, not by a
// check-then-create in application code.
type EntitlementRecord struct {
	ID        string
	UserID    string
	Subject   SubjectRef
	GrantedAt time.Time
}
