package options

import "errors"

var (
	ErrInvalidTimeout   = errors.New("timeout cannot be negative")
	ErrInvalidCacheSize = errors.New("fetch cache size must be positive")
	ErrNoGoBinary       = errors.New("go binary is empty")
	ErrProfileLoad      = errors.New("failed to load profile")
	ErrProfileKey       = errors.New("invalid profile setting")
	ErrEnvLoad          = errors.New("failed to load environment file")
	ErrEnvValue         = errors.New("invalid environment value")
)
