// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package layout computes how a raster image of arbitrary dimensions is
// placed on a fixed page: orientation, an aspect-preserving scale factor,
// and a centered placement offset. The computation is pure — no I/O, no
// failure path. Degenerate zero-area images are the caller's problem.
package layout

// Orientation of the target page.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// Profile describes a page size in PostScript points, portrait-oriented.
type Profile struct {
	Name   string
	Width  float64
	Height float64
}

// Standard page profiles. Dimensions are the portrait constants; the
// landscape bounds are the swap.
var (
	A4     = Profile{Name: "A4", Width: 595, Height: 842}
	A5     = Profile{Name: "A5", Width: 420, Height: 595}
	Letter = Profile{Name: "Letter", Width: 612, Height: 792}
)

// profiles indexes the known page profiles by name.
var profiles = map[string]Profile{
	"A4":     A4,
	"A5":     A5,
	"Letter": Letter,
}

// ProfileByName returns the named page profile, defaulting to A4 for
// unknown names.
func ProfileByName(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return A4
}

const (
	// PreferredMargin is 10mm expressed in points (1mm = 72/25.4 pt).
	PreferredMargin = 10 * 72 / 25.4

	// minScale is the threshold below which the preferred margin is
	// abandoned to reclaim page area for very large images.
	minScale = 0.1
)

// Decision is the computed placement of one image on one page.
type Decision struct {
	Orientation Orientation
	Scale       float64
	Margin      float64
	OffsetX     float64
	OffsetY     float64
	PageWidth   float64
	PageHeight  float64
}

// Compute maps image dimensions and a page profile to a placement
// decision. Orientation follows the image (square defaults to portrait),
// the scale factor preserves aspect ratio, and the image is centered on
// the page. If fitting inside the preferred margin would shrink the
// image below a readable size, the margin is dropped once and the fit
// recomputed — a one-shot fallback, not an iteration.
func Compute(imgWidth, imgHeight int, page Profile) Decision {
	orientation := Portrait
	pageW, pageH := page.Width, page.Height
	if imgWidth > imgHeight {
		orientation = Landscape
		pageW, pageH = pageH, pageW
	}

	margin := float64(PreferredMargin)
	scale := fitScale(imgWidth, imgHeight, pageW, pageH, margin)
	if scale < minScale {
		margin = 0
		scale = fitScale(imgWidth, imgHeight, pageW, pageH, margin)
	}

	// Never enlarge beyond the source resolution.
	if scale > 1 {
		scale = 1
	}

	return Decision{
		Orientation: orientation,
		Scale:       scale,
		Margin:      margin,
		OffsetX:     (pageW - float64(imgWidth)*scale) / 2,
		OffsetY:     (pageH - float64(imgHeight)*scale) / 2,
		PageWidth:   pageW,
		PageHeight:  pageH,
	}
}

// fitScale returns the largest aspect-preserving scale that fits the
// image inside the page minus a symmetric margin on both axes.
func fitScale(imgW, imgH int, pageW, pageH, margin float64) float64 {
	availW := pageW - 2*margin
	availH := pageH - 2*margin
	sx := availW / float64(imgW)
	sy := availH / float64(imgH)
	if sx < sy {
		return sx
	}
	return sy
}
