package devices

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"nexo/internal/core/domain"
)

// PatternCamera produces moving colour bars. It stands in for a webcam on
// headless hosts and in tests.
type PatternCamera struct {
	mu     sync.Mutex
	width  int
	height int
	frame  int
	open   bool
}

func NewPatternCamera() *PatternCamera {
	return &PatternCamera{}
}

var bars = []color.RGBA{
	{235, 235, 235, 255},
	{235, 235, 16, 255},
	{16, 235, 235, 255},
	{16, 235, 16, 255},
	{235, 16, 235, 255},
	{235, 16, 16, 255},
	{16, 16, 235, 255},
}

func (c *PatternCamera) Open(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("camera size %dx%d: %w", width, height, domain.ErrDeviceUnavailable)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
	c.open = true
	return nil
}

// Read returns the next frame. The bars scroll one column per frame and the
// left edge carries a marker so mirroring is visible.
func (c *PatternCamera) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, fmt.Errorf("camera not open: %w", domain.ErrDeviceUnavailable)
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	barWidth := c.width / len(bars)
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			bar := ((x + c.frame) / barWidth) % len(bars)
			img.SetRGBA(x, y, bars[bar])
		}
	}
	marker := c.width / 16
	for y := 0; y < c.height/8; y++ {
		for x := 0; x < marker; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
	c.frame++
	return img, nil
}

func (c *PatternCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}
