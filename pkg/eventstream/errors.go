package eventstream

import "errors"

// ErrNilTurnEvent indicates a nil turn event payload was provided to a publisher.
var ErrNilTurnEvent = errors.New("nil turn event")

// ErrNilArchiveEvent indicates a nil archive event payload was provided to a publisher.
var ErrNilArchiveEvent = errors.New("nil archive event")
