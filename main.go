package main

import "github.com/fakeyudi/commit-guardian/cmd"

func main() {
	cmd.Execute()
}
