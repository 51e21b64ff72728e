package scope

import "errors"

var (
	ErrScopeClosed      = errors.New("scope is disposed")
	ErrEmptyName        = errors.New("unit name is empty")
	ErrEmptyModule      = errors.New("module bytes are empty")
	ErrInvalidModule    = errors.New("module failed to compile in the runtime")
	ErrHandleClosed     = errors.New("handle is closed")
	ErrNotAModule       = errors.New("classpath entry does not contain a go.mod")
	ErrUnsafeArchive    = errors.New("archive entry escapes the extraction directory")
	ErrInvalidArchive   = errors.New("classpath archive is not a valid zip file")
	ErrUnsupportedEntry = errors.New("classpath entry must be a module directory or a .zip archive")
)
