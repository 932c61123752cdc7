package ldaptest

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// Invalid base DN, port, listener or bind credentials, or a server that
	// cannot be created from the configuration.
	ErrConfiguration = errors.New("ldaptest: configuration error")
	// A resource name matching no file. Wraps fs.ErrNotExist.
	ErrResourceNotFound = fmt.Errorf("ldaptest: resource not found: %w", fs.ErrNotExist)
	// A seed file that is missing, unreadable or malformed.
	ErrSeed = errors.New("ldaptest: seed import failed")
	// The listeners could not be started.
	ErrStart = errors.New("ldaptest: start failed")
	// The server could not be stopped after the test.
	ErrTeardown = errors.New("ldaptest: teardown failed")
)
