// Command patternshield scans web pages, markup, screenshots and URLs for
// dark patterns.
package main

import "github.com/raysh454/patternshield/internal/cli"

func main() {
	cli.Execute()
}
