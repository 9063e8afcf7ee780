package main

import (
	"os"
	"runtime"
)

func init() {
	// glfw must run on the main thread
	runtime.LockOSThread()
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
