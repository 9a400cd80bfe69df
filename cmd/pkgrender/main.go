package main

import "github.com/oshokin/pkgrender/cmd/pkgrender/cmd"

func main() {
	cmd.Execute()
}
