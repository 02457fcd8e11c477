// Package types holds the plain data of the identity layer: identifiers, key
// material, stored records, patches, queries and the outward views.
package types
