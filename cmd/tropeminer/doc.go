// Package main hosts the Trope Miner CLI entrypoint and command graph.
//
// The Cobra-based command tree maps terminal invocations onto pipeline
// stage selections (seed, judge, verify-spans, verify-cues, run), finding
// and run inspection, and configuration scaffolding. It centralizes
// configuration resolution, database access, and structured logging setup
// so subcommands can focus on presentation.
//
// Keep this package lean: add new behavior to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
