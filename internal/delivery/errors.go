package delivery

import "errors"

// ErrRemainingExceeded is returned by TxRepository.IncrementDelivered when the
// increment would push a line past its ordered quantity.
var ErrRemainingExceeded = errors.New("remaining quantity exceeded")
