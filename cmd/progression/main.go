// Package main is the entrypoint of the progression service.
package main

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	Execute(version)
}
