//go:build !plasmite_debug

package plasmite

// debugAssertions gates the tail-only consistency check of §4.7. It is
// compiled out entirely in normal builds; pass -tags plasmite_debug to
// enable it (e.g. in this package's own tests).
const debugAssertions = false
