package helpers

import "github.com/rs/xid"

// UnitName returns a fresh identifier usable as a Go file, directory and module name.
func UnitName(prefix string) string {
	return prefix + "_" + xid.New().String()
}
