package main

import "github.com/rpakit/reportbot/internal/cmd"

func main() {
	cmd.Execute()
}
