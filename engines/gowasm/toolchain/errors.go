package toolchain

import "errors"

var (
	ErrInvalidRequest     = errors.New("build request needs a dir, a package and an output path")
	ErrToolchainStart     = errors.New("failed to run go toolchain")
	ErrUnknownVersion     = errors.New("unrecognized go version")
	ErrUnsupportedVersion = errors.New("go toolchain is too old for GOOS=wasip1 (needs go1.21 or later)")
	ErrWriteModFile       = errors.New("failed to write go.mod")
	ErrWriteWorkFile      = errors.New("failed to write go.work")
	ErrNoModFile          = errors.New("no go.mod found")
	ErrNoModulePath       = errors.New("go.mod does not declare a module path")
)
