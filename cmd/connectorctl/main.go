package main

import "github.com/pilab-dev/googleconnector/cmd/connectorctl/cmd"

func main() {
	cmd.Execute()
}
