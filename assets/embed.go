package assets

import (
	_ "embed"
	"fmt"
	"os"
)

// MarkerPNG contains the raw PNG bytes of the bundled marker.
//
//go:embed marker.png
var MarkerPNG []byte

// MarkerBytes returns the override file at path when it can be read and the
// bundled marker otherwise. The second result reports whether the override was used.
func MarkerBytes(path string) ([]byte, bool, error) {
	if len(MarkerPNG) == 0 {
		return nil, false, fmt.Errorf("embedded marker.png is empty")
	}
	if path == "" {
		return MarkerPNG, false, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return MarkerPNG, false, nil
		}
		return MarkerPNG, false, fmt.Errorf("read marker override %s: %w", path, err)
	}
	return raw, true, nil
}
