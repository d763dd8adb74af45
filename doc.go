// Package acego provides an evolving-manual framework for LLM agents:
// a knowledge base that grows through incremental delta updates instead
// of wholesale rewriting, so accumulated context is never lost to lossy
// summarization.
//
// Key Components:
//
//   - pkg/ace: The core framework. EvolvingManual holds typed, tagged
//     items; DeltaUpdate and IncrementalUpdater apply incremental
//     changes with a complete append-only history; DeterministicMerger
//     grows existing items with per-type append-only templates and
//     detects near-duplicate content. The Generator, Reflector, and
//     Curator agents form the learning loop, and Framework ties them
//     together with JSON state export/restore.
//
//   - pkg/llm: Model backends implementing ace.GenerateFunc, currently
//     the Anthropic Messages API.
//
//   - pkg/storage: SQLite-backed versioned snapshot persistence for
//     framework state.
//
//   - pkg/config: YAML configuration with validation.
//
//   - pkg/logging, pkg/errors: Structured logging and error handling
//     used across the module.
//
// A minimal usage example:
//
//	f := ace.NewFramework()
//	id := f.AddManualItem("Use HTTPS for all API calls",
//		ace.ItemTypeConstraint, []string{"security"}, "user", 0.9)
//
//	update := ace.NewDeltaUpdate(ace.ActionUpdate, ace.ItemTypeConstraint,
//		"Also enforce TLS 1.2+", ace.WithTarget(id), ace.WithConfidence(0.95))
//	result := f.Updater().ApplyUpdate(update, ace.StrategyDeterministic)
//
// The merged item keeps both the original constraint and the new one;
// nothing is overwritten.
package acego
