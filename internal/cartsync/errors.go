package cartsync

import "errors"

var (
	// ErrNotAuthenticated is returned by operations that require a user
	// session, such as price-change resolution.
	ErrNotAuthenticated = errors.New("user not authenticated")

	// ErrUnresolvedPriceChanges blocks checkout while any line still has an
	// unaccepted price change.
	ErrUnresolvedPriceChanges = errors.New("cart has unresolved price changes")
)
