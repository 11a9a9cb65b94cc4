// The main package for the buzzcrawl executable.
package main

import (
	"github.com/JakeFAU/buzzcrawl/cmd"
)

func main() {
	cmd.Execute()
}
