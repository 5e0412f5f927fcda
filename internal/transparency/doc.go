// Package transparency explains collapse runs to people.
//
// The engine already records everything needed to answer "why": every
// eliminated token is in the ledger with its reason tags, and every step
// is in the trace. This package turns those records into markdown:
//
//   - ExplainElimination: why one token was dropped at one step
//   - ExplainStep: candidates, eliminations and the commit for a step
//   - Report: the whole run with its verification outcome
//
// It also classifies run errors into categories with remediation hints
// and the process exit code the CLI uses.
//
// Nothing here mutates a run. Reports can be produced from a live run or
// from one reloaded from the run store.
package transparency
