//go:build !linux

package main

func isTerminal(f interface{ Fd() uintptr }) bool {
	return false
}
