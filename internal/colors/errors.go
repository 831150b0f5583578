package colors

import "errors"

// ErrUnknownPalette is returned for names outside the palette catalog.
var ErrUnknownPalette = errors.New("unknown palette")
