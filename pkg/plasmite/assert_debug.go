//go:build plasmite_debug

package plasmite

const debugAssertions = true
