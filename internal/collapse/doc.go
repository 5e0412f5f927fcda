// Package collapse implements the prune / eliminate / select pipeline that
// commits exactly one token per step.
//
// A step runs in a fixed order:
//
//  1. Pruner (T): every kernel is evaluated for every candidate. A candidate
//     survives only if all kernels admit it; the reason tags of every failing
//     kernel are collected.
//  2. Eliminator (Φ): one ledger row per eliminated token, never duplicated,
//     followed by step-keyed context bookkeeping.
//  3. Selector (Ψ): a single survivor is committed as "unique"; otherwise the
//     static preference table ranks survivors with a lexical tie-break.
//  4. Discourse updates: context mutations that depend on the committed token.
//
// Bookkeeping (step 2) and discourse updates (step 4) are separate mutation
// points so that the reasons a token was rejected never depend on what was
// eventually selected.
//
// A Sequence threads one Context through an ordered list of candidate lists
// and accumulates the Trace and Ledger that the verification package checks.
// Runs are single-threaded; concurrent runs must each own a Context.
package collapse
