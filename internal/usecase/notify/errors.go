package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrChannelDisabled indicates that Send() was called on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidArticle indicates that the article is nil or missing the
	// fields a notification needs (title, URL).
	ErrInvalidArticle = errors.New("invalid article data")
)
