// Package report summarizes a reconciled corpus for people: patient and slide
// counts, label populations, bag size distribution and archive footprint.
package report
