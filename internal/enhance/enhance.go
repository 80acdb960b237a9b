package enhance

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Options are the tunable parameters of the retry enhancement recipe. The
// defaults were chosen empirically against low-contrast phone photos of sheet
// music; they are configuration, not invariants.
type Options struct {
	// TargetSize is the minimum larger dimension in pixels before upscaling kicks in.
	TargetSize int
	// MaxScale caps the upscale ratio.
	MaxScale float64
	// ClipLimit bounds per-tile histogram peaks during local equalization.
	ClipLimit float64
	// TileGrid is the number of equalization tiles per axis.
	TileGrid int
	// BlockSize is the adaptive threshold neighborhood (odd).
	BlockSize int
	// Offset is subtracted from the local mean before thresholding.
	Offset int
}

// DefaultOptions returns the recipe defaults.
func DefaultOptions() Options {
	return Options{
		TargetSize: 2200,
		MaxScale:   3.0,
		ClipLimit:  2.8,
		TileGrid:   8,
		BlockSize:  41,
		Offset:     11,
	}
}

func (o Options) normalized() Options {
	if o.TargetSize <= 0 {
		o.TargetSize = 2200
	}
	if o.MaxScale <= 0 {
		o.MaxScale = 3.0
	}
	if o.ClipLimit <= 0 {
		o.ClipLimit = 2.8
	}
	if o.TileGrid <= 0 {
		o.TileGrid = 8
	}
	if o.BlockSize < 3 {
		o.BlockSize = 41
	}
	if o.BlockSize%2 == 0 {
		o.BlockSize++
	}
	if o.Offset < 0 {
		o.Offset = 11
	}
	return o
}

// PrepareRetryImage builds a contrast-enhanced binary render of the source
// image that improves staff detection: grayscale, bounded upscale, local
// contrast equalization, light blur, adaptive threshold, and a polarity fix
// so ink is dark on a light background. The result is written to outputDir as
// "<stem>_staff_retry.png" and its path returned. The function is a pure
// transformation of the input image; the original file is never touched.
func PrepareRetryImage(srcPath, outputDir string, opts Options) (string, error) {
	opts = opts.normalized()

	src, err := imaging.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("read image for retry preprocessing: %w", err)
	}

	gray := toGray(imaging.Grayscale(src))

	bounds := gray.Bounds()
	maxDim := bounds.Dx()
	if bounds.Dy() > maxDim {
		maxDim = bounds.Dy()
	}
	if maxDim > 0 && maxDim < opts.TargetSize {
		scale := math.Min(opts.MaxScale, float64(opts.TargetSize)/float64(maxDim))
		width := int(math.Round(float64(bounds.Dx()) * scale))
		height := int(math.Round(float64(bounds.Dy()) * scale))
		gray = toGray(imaging.Resize(gray, width, height, imaging.CatmullRom))
	}

	equalized := equalizeLocal(gray, opts.TileGrid, opts.ClipLimit)
	blurred := toGray(imaging.Blur(equalized, 0.8))
	binary := adaptiveThreshold(blurred, opts.BlockSize, opts.Offset)

	if meanBrightness(binary) < 128 {
		invert(binary)
	}

	stem := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	dest := filepath.Join(outputDir, stem+"_staff_retry.png")
	if err := imaging.Save(binary, dest); err != nil {
		return "", fmt.Errorf("write enhanced retry image: %w", err)
	}
	return dest, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return gray
}

// equalizeLocal applies clip-limited adaptive histogram equalization: one
// clipped-histogram lookup table per tile, blended bilinearly between the
// four nearest tile centers for each pixel.
func equalizeLocal(src *image.Gray, tiles int, clipLimit float64) *image.Gray {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return src
	}

	tileW := (width + tiles - 1) / tiles
	tileH := (height + tiles - 1) / tiles
	if tileW == 0 {
		tileW = 1
	}
	if tileH == 0 {
		tileH = 1
	}
	tilesX := (width + tileW - 1) / tileW
	tilesY := (height + tileH - 1) / tileH

	luts := make([][]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := minInt(x0+tileW, width), minInt(y0+tileH, height)
			luts[ty*tilesX+tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := int(math.Floor(fy))
		wy := fy - float64(ty0)
		ty1 := clampInt(ty0+1, 0, tilesY-1)
		ty0 = clampInt(ty0, 0, tilesY-1)

		for x := 0; x < width; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := int(math.Floor(fx))
			wx := fx - float64(tx0)
			tx1 := clampInt(tx0+1, 0, tilesX-1)
			tx0 = clampInt(tx0, 0, tilesX-1)

			v := src.GrayAt(x, y).Y
			top := (1-wx)*float64(luts[ty0*tilesX+tx0][v]) + wx*float64(luts[ty0*tilesX+tx1][v])
			bottom := (1-wx)*float64(luts[ty1*tilesX+tx0][v]) + wx*float64(luts[ty1*tilesX+tx1][v])
			dst.SetGray(x, y, color.Gray{Y: grayValue((1-wy)*top + wy*bottom)})
		}
	}
	return dst
}

func tileLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) []uint8 {
	var hist [256]int
	count := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.GrayAt(x, y).Y]++
			count++
		}
	}

	lut := make([]uint8, 256)
	if count == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	// Clip histogram peaks and redistribute the excess uniformly.
	clip := int(clipLimit * float64(count) / 256)
	if clip < 1 {
		clip = 1
	}
	excess := 0
	for i, v := range hist {
		if v > clip {
			excess += v - clip
			hist[i] = clip
		}
	}
	share := excess / 256
	for i := range hist {
		hist[i] += share
	}

	cumulative := 0
	for i, v := range hist {
		cumulative += v
		lut[i] = grayValue(float64(cumulative) * 255 / float64(count))
	}
	return lut
}

// adaptiveThreshold binarizes against a Gaussian-weighted neighborhood mean
// minus a fixed offset. Sigma is derived from the block size the way OpenCV
// sizes its Gaussian kernels.
func adaptiveThreshold(src *image.Gray, blockSize, offset int) *image.Gray {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return dst
	}

	sigma := 0.3*(float64(blockSize-1)*0.5-1) + 0.8
	mean := toGray(imaging.Blur(src, sigma))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if float64(src.GrayAt(x, y).Y) > float64(mean.GrayAt(x, y).Y)-float64(offset) {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return dst
}

func meanBrightness(img *image.Gray) float64 {
	bounds := img.Bounds()
	total := int64(0)
	count := int64(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			total += int64(img.GrayAt(x, y).Y)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func invert(img *image.Gray) {
	for i := range img.Pix {
		img.Pix[i] = 255 - img.Pix[i]
	}
}

func grayValue(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
