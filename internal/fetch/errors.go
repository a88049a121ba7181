package fetch

import "errors"

// ErrInvalidRequest — в запросе не указаны тип или id сущности.
var ErrInvalidRequest = errors.New("invalid fetch request")
