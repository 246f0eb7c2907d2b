// rbrbctl is a CLI for inspecting a running rbrb-counter-demo instance.
package main

import "github.com/lockstepnet/rbrb/cmd/rbrbctl/commands"

func main() {
	commands.Execute()
}
