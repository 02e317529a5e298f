//go:build !unix

package connector

import "os"

// Without access(2) the owner permission bits are the best signal.

func canRead(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().Perm()&0400 != 0
}

func canWrite(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().Perm()&0200 != 0
}
