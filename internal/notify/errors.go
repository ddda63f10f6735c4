package notify

import (
	"fmt"

	"github.com/rightsguard/incident-core/internal/model"
)

// ChannelError is a failed delivery on one channel. It matches
// model.ErrChannelFailure under errors.Is.
type ChannelError struct {
	Channel model.Channel
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s channel: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() []error { return []error{model.ErrChannelFailure, e.Err} }

func channelErr(ch model.Channel, err error) error {
	return &ChannelError{Channel: ch, Err: err}
}
