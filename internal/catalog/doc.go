// Package catalog persists the name catalog.
//
// Each entry keeps its human-facing display name plus a normalized key
// (lowercase, accent-stripped, whitespace-collapsed) that is the real
// uniqueness boundary: "José García" and "jose  garcia" are the same entry.
// Entries also carry a usage counter bumped once per day they are picked.
package catalog
