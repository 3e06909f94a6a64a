package normalize

import "errors"

var (
	errMissingRequiredField = errors.New("missing required field")
	errTitleTooShort         = errors.New("title shorter than minimum length")
	errRelativeURLNoBase     = errors.New("relative applicationURL with no base URL to resolve against")
)
