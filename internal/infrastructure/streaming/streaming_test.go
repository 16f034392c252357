package streaming

import (
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestSlot_StoreTake(t *testing.T) {
	var s LatestSlot[[]byte]

	_, ok := s.Take()
	assert.False(t, ok)
	assert.False(t, s.Has())

	assert.False(t, s.Store([]byte{1}))
	assert.True(t, s.Store([]byte{2}))
	assert.True(t, s.Has())

	v, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, v)

	_, ok = s.Take()
	assert.False(t, ok)
}

func TestLatestSlot_OnlyNewestSurvivesFastProducer(t *testing.T) {
	var s LatestSlot[int]
	for i := 1; i <= 100; i++ {
		s.Store(i)
	}
	v, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, 100, v)
}

func TestLatestSlot_ConcurrentConsumerNeverSeesStaleValue(t *testing.T) {
	var s LatestSlot[int]
	const n = 10000

	var wg sync.WaitGroup
	taken := make([]int, 0, n)
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if v, ok := s.Take(); ok {
				taken = append(taken, v)
			}
			select {
			case <-done:
				if v, ok := s.Take(); ok {
					taken = append(taken, v)
				}
				return
			default:
			}
		}
	}()

	for i := 1; i <= n; i++ {
		s.Store(i)
	}
	close(done)
	wg.Wait()

	require.NotEmpty(t, taken)
	for i := 1; i < len(taken); i++ {
		assert.Greater(t, taken[i], taken[i-1], "values must come out in production order without repeats")
	}
	assert.Equal(t, n, taken[len(taken)-1])
}

func TestMirror(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(2, 0, color.RGBA{B: 255, A: 255})

	m := Mirror(img)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, m.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, m.RGBAAt(2, 0))
}

func TestMirror_NonRGBASource(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 200})

	m := Mirror(img)
	assert.Equal(t, color.RGBA{R: 200, G: 200, B: 200, A: 255}, m.RGBAAt(1, 0))
}

func TestScale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	assert.Same(t, img, Scale(img, 640, 480).(*image.RGBA))
	assert.Equal(t, image.Rect(0, 0, 320, 240), Scale(img, 320, 240).Bounds())
}

func TestJPEGRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	data, err := EncodeJPEG(img, 40)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	decoded, err := DecodeJPEG(data)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	_, err = DecodeJPEG([]byte("not a jpeg"))
	assert.Error(t, err)
}
