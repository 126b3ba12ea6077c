//go:build windows

package capture

// GDI capture of the virtual desktop. Each Grab BitBlt's the region into a
// temporary DIB section and converts BGRA into a pooled *image.RGBA that the
// caller hands back through Recycle.

import (
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCxVirtualScreen = 78
	smCyVirtualScreen = 79
	srccopy           = 0x00CC0020
	captureBlt        = 0x40000000
	dibRGBColors      = 0
	biRgb             = 0
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procGetDC              = user32.NewProc("GetDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procGetSystemMetrics   = user32.NewProc("GetSystemMetrics")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procBitBlt             = gdi32.NewProc("BitBlt")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte // one RGBQUAD placeholder (unused for 32-bit)
}

// GDIGrabber captures through user32/gdi32.
type GDIGrabber struct{}

func newGDIGrabber() (Grabber, error) { return GDIGrabber{}, nil }

func virtualDesktop() image.Rectangle {
	x := int(getSystemMetric(smXVirtualScreen))
	y := int(getSystemMetric(smYVirtualScreen))
	w := int(getSystemMetric(smCxVirtualScreen))
	h := int(getSystemMetric(smCyVirtualScreen))
	return image.Rect(x, y, x+w, y+h)
}

func (GDIGrabber) Grab(sel image.Rectangle) (*image.RGBA, error) {
	if sel.Empty() {
		return nil, ErrEmptyRegion
	}
	desk := virtualDesktop()
	r := sel.Intersect(desk)
	if r.Empty() {
		return nil, fmt.Errorf("%w: region=%v desktop=%v", ErrOffscreen, sel, desk)
	}
	return captureRect(r)
}

func (GDIGrabber) Recycle(img *image.RGBA) { RecycleFrame(img) }

func captureRect(r image.Rectangle) (*image.RGBA, error) {
	w, h := r.Dx(), r.Dy()

	screenDC, _, _ := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("capture: GetDC failed: %w", windows.GetLastError())
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, _ := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return nil, fmt.Errorf("capture: CreateCompatibleDC failed: %w", windows.GetLastError())
	}
	defer procDeleteDC.Call(memDC)

	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRgb
	bi.Header.BiSizeImage = uint32(w * h * 4)

	var bitsPtr unsafe.Pointer
	bmp, _, _ := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bitsPtr)), 0, 0)
	if bmp == 0 {
		return nil, fmt.Errorf("capture: CreateDIBSection failed: %w", windows.GetLastError())
	}
	defer procDeleteObject.Call(bmp)

	prev, _, _ := procSelectObject.Call(memDC, bmp)
	if prev == 0 || prev == ^uintptr(0) {
		return nil, fmt.Errorf("capture: SelectObject failed: %w", windows.GetLastError())
	}

	// Source coordinates are virtual-desktop coordinates and may be negative.
	ok, _, _ := procBitBlt.Call(memDC, 0, 0, uintptr(w), uintptr(h), screenDC, uintptr(int32(r.Min.X)), uintptr(int32(r.Min.Y)), srccopy|captureBlt)
	if ok == 0 {
		return nil, fmt.Errorf("capture: BitBlt %v failed: %w", r, windows.GetLastError())
	}

	pixLen := w * h * 4
	src := unsafe.Slice((*byte)(bitsPtr), pixLen)
	dst := acquireFrame(w, h)
	for i := 0; i < pixLen; i += 4 {
		dst.Pix[i+0] = src[i+2]
		dst.Pix[i+1] = src[i+1]
		dst.Pix[i+2] = src[i+0]
		dst.Pix[i+3] = 0xFF
	}
	return dst, nil
}

func getSystemMetric(idx int) int32 {
	v, _, _ := procGetSystemMetrics.Call(uintptr(idx))
	return int32(v)
}

var _ Recycler = GDIGrabber{}
