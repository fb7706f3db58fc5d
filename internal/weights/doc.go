// Package weights computes per-category loss weights and gates training on
// category populations.
package weights
