package firmware

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Wa4h1h/go-unbrick/pkg/utils"
)

// Image is the firmware blob served to the recovering device. It is loaded
// once at startup and never mutated afterwards.
type Image struct {
	Name  string
	Bytes []byte
}

// Load reads the firmware file at path. The served filename is the base name
// of the path, which is what the device puts in its read request.
func Load(path string) (*Image, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (download the firmware and place it next to the server)",
				utils.ErrFirmwareMissing, path)
		}

		return nil, fmt.Errorf("error while checking firmware file: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error while reading firmware file %s: %w", path, err)
	}

	if len(b) == 0 {
		return nil, fmt.Errorf("%w: %s", utils.ErrFirmwareEmpty, path)
	}

	return &Image{Name: filepath.Base(path), Bytes: b}, nil
}
