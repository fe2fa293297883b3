package main

import "github.com/frahmantamala/pos-billing/cmd"

func main() {
	cmd.Execute()
}
