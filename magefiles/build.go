//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Downloads the modules and builds the testbed binary into bin/.
func (Build) Engine() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/reverie", "."), withStream())
	return err
}

// Builds the testbed with debug assertions enabled.
func (Build) Debug() error {
	_, err := executeCmd("go", withArgs("build", "-tags", "debug", "-o", "bin/reverie-debug", "."), withStream())
	return err
}
