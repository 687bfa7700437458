// Package orm defines the contract Stash consumes from the ORM's
// change-tracking and save-lifecycle machinery. An ORM adapter outside this
// module implements these interfaces against its own metamodel.
package orm

// EntityState is the tracked state of an entity at SavingChanges time.
type EntityState int

const (
	Unchanged EntityState = iota
	Added
	Modified
	Deleted
)

// TrackedEntity pairs an entity instance with its tracked state.
type TrackedEntity struct {
	Entity any
	State  EntityState
}

// ChangeTracker yields every tracked entity and its state for a save.
type ChangeTracker interface {
	TrackedEntities() []TrackedEntity
}

// Navigation describes an owned-entity relationship whose rows live in
// another table and must be invalidated alongside the owning entity.
type Navigation struct {
	TableName string
	IsOwned   bool
}

// EntityType is what Model.FindEntityType resolves an entity instance to.
type EntityType struct {
	TableName  string
	Navigations []Navigation
}

// Model resolves an entity instance, or an entity Go type, to its table name
// and owned navigations.
type Model interface {
	// FindEntityType resolves entity to its EntityType. ok is false when
	// the model has no mapping for entity (e.g. a value not tracked by
	// this ORM).
	FindEntityType(entity any) (t EntityType, ok bool)
}

// Session is a single unit-of-work save scope. SessionID identifies the
// pending-invalidation slot associated with this save in
// pkg/saveintercept.
type Session interface {
	SessionID() string
	ChangeTracker() ChangeTracker
	Model() Model
}
