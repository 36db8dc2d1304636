package streamunzip

import "errors"

// ErrUnknownFileFormat is returned by AutoReader when the first bytes of
// a stream match neither the ZIP nor the GZIP magic.
var ErrUnknownFileFormat = errors.New("streamunzip: unknown file format")
