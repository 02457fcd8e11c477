// Package domain defines core data models, error kinds and interfaces shared
// across the identity layer. It contains plain types and contracts only; the
// types and interfaces subpackages are re-exported here for compact imports.
package domain
