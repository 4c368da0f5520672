//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed against the assets directory.
func (Run) Testbed() error {
	mg.Deps(Build.Engine)
	fmt.Println("Run testbed...")
	_, err := executeCmd("bin/reverie", withArgs("--config", "reverie.toml"), withStream())
	return err
}
