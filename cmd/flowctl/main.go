// Command flowctl inspects and maintains the flow document, cache and state stores.
package main

import (
	"github.com/nimburion/flowstore/pkg/cli"
)

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name: "flowctl",
	}))
}
