package main

import "github.com/MeKo-Tech/imas/cmd/imas/cmd"

func main() {
	cmd.Execute()
}
