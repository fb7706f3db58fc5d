// Package cohort turns a clinical table, a slide table and the feature archive
// directory into a reconciled corpus of patient records.
//
// Tables are read with ReadTable and projected into key-unique mappings by
// PatientGroundTruth and SlidePatients, which reject duplicate keys and
// missing columns. Reconcile joins the mappings with archive existence and
// reports every inconsistency as a diagnostic rather than an error.
package cohort
