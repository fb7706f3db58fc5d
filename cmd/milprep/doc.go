// Package main hosts the milprep CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into preparation
// runs: reconciling the clinical and slide tables against the feature
// directory, planning a split and recording it in the manifest, inspecting
// feature archives, and scaffolding configuration. Configuration resolution
// and logger construction are centralized in commandContext so subcommands
// only render results.
//
// Keep this package lean: new behaviour belongs in the internal packages
// first and is surfaced here as a command or flag.
package main
