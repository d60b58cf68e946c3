package encode

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// converter turns BGRA frames into I420 (YCbCr 4:2:0) images for the
// VP8 encoder, reusing its scratch gocv.Mats across calls instead of
// allocating one per frame.
type converter struct {
	width, height int

	bgra gocv.Mat
	yuv  gocv.Mat
}

func newConverter(width, height int) *converter {
	return &converter{
		width:  width,
		height: height,
		bgra:   gocv.NewMat(),
		yuv:    gocv.NewMat(),
	}
}

func (c *converter) close() {
	c.bgra.Close()
	c.yuv.Close()
}

// toI420 converts a BGRA byte buffer into an *image.YCbCr with 4:2:0
// subsampling, the format the VP8 encoder consumes. The incoming bytes
// are copied into c.bgra, the reused scratch Mat, rather than handed to
// CvtColor directly — the caller's buffer is handed back to the capture
// loop after this call returns, so nothing but c.bgra can keep a
// reference to it across frames.
func (c *converter) toI420(bgra []byte) (*image.YCbCr, error) {
	if want := c.width * c.height * 4; len(bgra) != want {
		return nil, fmt.Errorf("bgra buffer is %d bytes, want %d for %dx%d", len(bgra), want, c.width, c.height)
	}
	view, err := gocv.NewMatFromBytes(c.height, c.width, gocv.MatTypeCV8UC4, bgra)
	if err != nil {
		return nil, fmt.Errorf("convert bgra buffer to mat: %w", err)
	}
	defer view.Close()
	view.CopyTo(&c.bgra)

	gocv.CvtColor(c.bgra, &c.yuv, gocv.ColorBGRAToYUVI420)

	return matToYCbCr(c.yuv, c.width, c.height)
}

// matToYCbCr reinterprets a gocv I420 Mat's packed planar bytes as an
// *image.YCbCr without copying the plane data.
func matToYCbCr(yuv gocv.Mat, width, height int) (*image.YCbCr, error) {
	data, err := yuv.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("read yuv mat data: %w", err)
	}

	ySize := width * height
	cSize := (width / 2) * (height / 2)
	if len(data) < ySize+2*cSize {
		return nil, fmt.Errorf("yuv buffer too small: got %d bytes, want %d", len(data), ySize+2*cSize)
	}

	img := &image.YCbCr{
		Y:              data[:ySize],
		Cb:             data[ySize : ySize+cSize],
		Cr:             data[ySize+cSize : ySize+2*cSize],
		YStride:        width,
		CStride:        width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, width, height),
	}
	return img, nil
}
