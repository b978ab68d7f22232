package compose

import "errors"

var (
	errGeneratorDisabled = errors.New("text generator not configured")
	errEmptyGeneration   = errors.New("text generator returned no content")
)
