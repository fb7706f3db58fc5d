// Package pipeline wires the preparation stages together.
//
// Prepare loads the source tables, reconciles them with the feature archives,
// plans a leakage-free split, builds the training and validation loaders and
// gates on category populations. Every stage logs under the run identifier so
// a run can be followed end to end. PrepareDeployment reuses a stored
// category order for evaluation.
package pipeline
