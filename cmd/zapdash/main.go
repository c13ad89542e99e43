// Package main provides the zapdash command.
//
// Usage:
//
//	zapdash serve [--config zapdash.yaml]
//	zapdash format report.json
//
// See --help for all available options.
package main

func main() {
	Execute()
}
