// Package split plans leakage-free patient partitions.
//
// Stratified produces one train/validation split, KFold a set of stratified
// cross-validation folds. CheckDisjoint is the post-condition callers run
// before using any partition.
package split
