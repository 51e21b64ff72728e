package compiler

import "errors"

var (
	ErrContentNil       = errors.New("unit is nil or empty")
	ErrNoToolchain      = errors.New("no toolchain configured")
	ErrNoWorkspace      = errors.New("workspace is nil")
	ErrWriteSource      = errors.New("failed to write unit source")
	ErrArtifactMissing  = errors.New("toolchain reported success but produced no module")
	ErrToolchainFailure = errors.New("toolchain could not run")
)
