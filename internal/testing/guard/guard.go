// Package guard forces test mode for command packages under test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TILES_TEST_MODE") == "" {
			_ = os.Setenv("TILES_TEST_MODE", "1")
		}
	})
}
