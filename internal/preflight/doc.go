// Package preflight provides readiness checks for the tables, directories and
// manifest a preparation run depends on.
//
// RunAll reports every problem at once so a misconfigured cohort can be fixed
// in one pass instead of failing stage by stage. The CLI "milprep preflight"
// command renders the results as a table.
package preflight
