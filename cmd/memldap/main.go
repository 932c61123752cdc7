// Package main is the entry point of the memldap command.
package main

import (
	"os"

	"github.com/merlinz01/memldap/cmd/memldap/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
