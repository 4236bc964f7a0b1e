package main

import "github.com/flitsinc/go-taskfeed/cmd/feedctl/cli"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Execute(version, commit, date)
}
