//go:build !windows && !darwin

package operation

const openCommand = "xdg-open"
