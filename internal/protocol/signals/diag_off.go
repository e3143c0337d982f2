//go:build !diag

package signals

const diagnostics = false
