// Package screen grabs the primary display as JPEG.
package screen

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/kbinani/screenshot"
)

// Grabber captures the primary display. It keeps no state; every grab
// queries the display list fresh so resolution changes are picked up.
type Grabber struct{}

func NewGrabber() *Grabber {
	return &Grabber{}
}

// Grab captures display 0 and encodes it at the given JPEG quality.
func (g *Grabber) Grab(quality int) ([]byte, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, errors.New("no active display")
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
	if err != nil {
		return nil, fmt.Errorf("capture display: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
