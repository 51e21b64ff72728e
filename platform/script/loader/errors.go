package loader

import "errors"

var (
	ErrSchemeUnsupported  = errors.New("unsupported scheme")
	ErrSourceNotAvailable = errors.New("source not available")
	ErrInputEmpty         = errors.New("input is empty")
	ErrSourceTooLarge     = errors.New("source exceeds the maximum archive size")
	ErrS3NotConfigured    = errors.New("s3 endpoint and credentials are required for s3:// entries")
)
