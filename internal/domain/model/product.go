package model

import "time"

// Product is a priced, purchasable catalog item: a subcourse, an
// internship-letter workflow attached to a course, or a recorded-lesson set.
type Product struct {
	ID       string // UUID
	Kind     ProductKind
	Title    string
	Price    int64 // minor units; must be > 0 to be orderable
	Currency string

	// EnrollmentCount is an aggregate effect owned by the grantor: incremented
	// exactly once per distinct grant, never decremented here.
	EnrollmentCount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Unlock is one row of a subject's unlocked-products list.
type Unlock struct {
	SubjectUserID string
	ProductID     string
	EntryID       string // ledger entry that produced this unlock
	UnlockedAt    time.Time
}
