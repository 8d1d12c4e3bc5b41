// Package model defines the data structures used throughout the application.
package model

import "time"

// Namespace selects one of the independent key-value namespaces of the
// external store.
type Namespace string

const (
	// Accounts maps IdentityKey → issued token.
	Accounts Namespace = "accounts"
	// Inventory maps token → the user's inventory (opaque JSON).
	Inventory Namespace = "inventory"
	// Favorites maps token → the user's favorites (opaque JSON).
	Favorites Namespace = "favorites"
)

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case Accounts, Inventory, Favorites:
		return true
	}
	return false
}

// Entry is one stored value.
//
// Value is opaque to the store: a token string in Accounts, JSON text in
// the collection namespaces. Metadata is a free-form annotation (the
// owner's IdentityKey for collections), never interpreted on read.
type Entry struct {
	Namespace Namespace `json:"namespace"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Write is one element of a batched write.
//
// IfAbsent writes only insert: if the key already exists the write is
// skipped and the stored value is left untouched.
type Write struct {
	Namespace Namespace
	Key       string
	Value     string
	Metadata  string
	IfAbsent  bool
}
