//go:build !unix

package etl

import "errors"

func startDetachedHolder() (int, error) {
	return 0, errors.New("detached helpers need unix process groups")
}
