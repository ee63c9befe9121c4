//go:build !linux

package main

func registerPlatformCommands() {}
