//go:build !linux

package flow

import "github.com/pkg/errors"

func setThreadPriority(nice int) error {
	return errors.New("thread priority not supported on this platform")
}
