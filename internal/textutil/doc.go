// Package textutil normalizes ingredient names for storage, dedup and catalog
// lookup.
//
// CleanName produces the display form stored in cleaned_name: Unicode NFKC,
// full-width characters folded to their narrow forms, runs of whitespace
// collapsed, ends trimmed. FoldName produces the comparison form: a cleaned
// name with case folded, so "Roma  Tomatoes" and "ｒｏｍａ tomatoes" compare
// equal.
package textutil
