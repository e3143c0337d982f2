//go:build diag

package signals

// diagnostics enables the per-signal Describe output.
const diagnostics = true
