// Package domain defines tracked repositories and the resolution port
package domain

import (
	"context"
	"time"
)

// Repository is a capture target known to the engine
type Repository struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	NameKey   string    `json:"-"`
	IsLarge   bool      `json:"is_large"`
	SizeKB    int64     `json:"size_kb"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resolver turns a submitted reference into a known repository
type Resolver interface {
	Resolve(ctx context.Context, id int64) (Repository, error)
	ResolveName(ctx context.Context, fullName string) (Repository, error)
}

// ServicePort adds the operator flag
type ServicePort interface {
	Resolver
	MarkLarge(ctx context.Context, id int64, large bool) (Repository, error)
}
