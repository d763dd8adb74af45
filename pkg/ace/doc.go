// Package ace implements agentic context engineering: an evolving
// manual of instructions, examples, patterns, constraints, insights,
// and refinements that grows through incremental delta updates instead
// of wholesale rewriting.
//
// The manual is mutated only through DeltaUpdate values applied by an
// IncrementalUpdater; merges are produced by a DeterministicMerger
// whose per-type templates are append-only, so earlier content is
// never lost to summarization. The Generator, Reflector, and Curator
// agents form the learning loop: generate with the manual's context,
// reflect on the outcome, and curate the resulting insights back into
// the manual. Framework ties the pieces together and can export or
// restore its full state as JSON.
package ace
