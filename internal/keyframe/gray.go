// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package keyframe

import (
	"image"
	"image/color"
)

// Gray is a single channel intensity view of a frame, used only for comparison.
type Gray struct {
	Width  int
	Height int
	Pix    []uint8
}

// ToGray converts img to luma using the same weights for every frame.
// The buffer of dst is reused when it is large enough.
func ToGray(img image.Image, dst *Gray) *Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if dst == nil {
		dst = &Gray{}
	}
	n := w * h
	if cap(dst.Pix) < n {
		dst.Pix = make([]uint8, n)
	}
	dst.Pix = dst.Pix[:n]
	dst.Width, dst.Height = w, h

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*4]
			out := dst.Pix[y*w : (y+1)*w]
			for x := range out {
				out[x] = luma(uint32(row[x*4]), uint32(row[x*4+1]), uint32(row[x*4+2]))
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			copy(dst.Pix[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.Pix[i] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				i++
			}
		}
	}
	return dst
}

// luma matches color.GrayModel for 8-bit opaque input.
func luma(r, g, b uint32) uint8 {
	r |= r << 8
	g |= g << 8
	b |= b << 8
	y := (19595*r + 38470*g + 7471*b + 1<<15) >> 24
	return uint8(y)
}

// Score counts pixel positions whose intensity differs between a and b.
// It measures the area of change, not its magnitude.
func Score(a, b *Gray) (int, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return 0, ErrFrameSize
	}
	n := 0
	for i, v := range a.Pix {
		if v != b.Pix[i] {
			n++
		}
	}
	return n, nil
}
