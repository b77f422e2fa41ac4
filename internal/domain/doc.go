// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (record.go, history.go, event.go, command.go, etc.)
// with shared types and cross-cutting interfaces. Only tiny pure helpers live here; the
// components that own state (broker, detector, admission) live in their own packages.
// Keeping the contracts here prevents circular imports between those packages.
package domain
