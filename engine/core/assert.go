package core

import "fmt"

// Assert reports a programmer error. Builds tagged `debug` panic on a failed
// assertion; release builds log it and carry on.
func Assert(cond bool, msg string, args ...interface{}) bool {
	if cond {
		return true
	}
	if DebugMode {
		panic(fmt.Sprintf(msg, args...))
	}
	LogError("assertion failed: "+msg, args...)
	return false
}
