// Package deployment provides pure functions for deployment planning.
//
// This package contains the functional core logic for turning a loaded
// artifact set into an ordered deployment plan. All functions are pure
// (no I/O, no side effects).
//
// # Functions
//
//   - Policy: Declarative per-artifact rules (DefaultPolicies, ParsePolicies)
//   - Planning: Build the work list and exclusions once (PlanWork)
//   - Ordering: Group work items into dependency batches (Batches)
//   - State: Per-artifact state machine and skip decisions (ValidTransition, DecideUpload)
//   - Manifest: Merge network-keyed manifests (MergeAddressManifest, MergeBlockManifest)
//
// # Usage
//
// The imperative shell (internal/shell/deployer) uses these pure functions
// to plan a run, then executes each batch against the ledger.
//
//	plan, err := deployment.PlanWork(set, deployment.DefaultPolicies(), opts)
//	batches, err := deployment.Batches(plan.Items)
//	decision := deployment.DecideUpload(true, registered, candidate)
package deployment
