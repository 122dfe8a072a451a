//go:build darwin

package operation

const openCommand = "open"
