package main

import "github.com/stelzch/allreduce/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
