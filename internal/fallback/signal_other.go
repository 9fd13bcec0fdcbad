//go:build !unix

package fallback

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pausing local speech is not supported on this platform")

func suspend(*os.Process) error {
	return errPauseUnsupported
}

func resume(*os.Process) error {
	return errPauseUnsupported
}
