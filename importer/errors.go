package importer

import "errors"

// ErrInvalidConfig indicates options that would corrupt the chunk-width
// arithmetic, raised before any I/O.
var ErrInvalidConfig = errors.New("invalid import configuration")

// ErrTooManyDrops indicates the consecutive non-monotonic row threshold was
// exceeded, which usually means a broken source table rather than the
// occasional duplicate.
var ErrTooManyDrops = errors.New("too many consecutive non-monotonic rows")
