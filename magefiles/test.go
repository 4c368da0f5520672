//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the unit tests with the race detector and debug assertions.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-tags", "debug", "-count=1", "./..."), withStream())
	return err
}
