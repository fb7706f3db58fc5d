// Package loader groups patient bags into batches for a training loop.
//
// A Loader fixes the category order at construction, so every loader built
// from the same Categories encodes labels identically. Bags of a batch are
// assembled concurrently on a bounded errgroup; each bag is complete before
// its batch is yielded.
package loader
