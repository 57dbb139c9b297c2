// Package batch migrates many process instances with one plan.
//
// Each instance is migrated in its own transaction through an Instances
// implementation (normally *store.Store), so a failing instance never
// affects the others. Execute runs instances one after another and stops at
// the first failure; ExecuteAsync runs them on a bounded worker pool and
// records a result per instance.
package batch
