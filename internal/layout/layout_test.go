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

package layout

import (
	"math"
	"testing"
)

const epsilon = 1e-9

// TestOrientation verifies orientation selection for wide, tall and
// square images.
func TestOrientation(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want Orientation
	}{
		{"wide image goes landscape", 2000, 1000, Landscape},
		{"tall image goes portrait", 1000, 2000, Portrait},
		{"square image defaults to portrait", 500, 500, Portrait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compute(tt.w, tt.h, A4)
			if d.Orientation != tt.want {
				t.Errorf("orientation = %s, want %s", d.Orientation, tt.want)
			}
		})
	}
}

// TestScaleWideImageOnA4 checks the aspect-preserving scale for a
// 2000x1000 image on landscape A4 (842x595 with 10mm margins).
func TestScaleWideImageOnA4(t *testing.T) {
	d := Compute(2000, 1000, A4)

	if d.PageWidth != 842 || d.PageHeight != 595 {
		t.Fatalf("page bounds = %vx%v, want 842x595", d.PageWidth, d.PageHeight)
	}

	sx := (842 - 2*PreferredMargin) / 2000.0
	sy := (595 - 2*PreferredMargin) / 1000.0
	want := math.Min(sx, sy)
	if math.Abs(d.Scale-want) > epsilon {
		t.Errorf("scale = %v, want %v", d.Scale, want)
	}
	if d.Margin != PreferredMargin {
		t.Errorf("margin = %v, want preferred margin %v", d.Margin, float64(PreferredMargin))
	}
}

// TestScaleNeverStretches verifies the scale factor is the minimum of
// the per-axis ratios, never applied independently.
func TestScaleNeverStretches(t *testing.T) {
	d := Compute(1000, 2000, A4)

	sx := (595 - 2*PreferredMargin) / 1000.0
	sy := (842 - 2*PreferredMargin) / 2000.0
	want := math.Min(sx, sy)
	if math.Abs(d.Scale-want) > epsilon {
		t.Errorf("scale = %v, want min(%v, %v)", d.Scale, sx, sy)
	}
}

// TestMarginFallback constructs an image whose preferred-margin scale
// rounds below 0.1 and asserts the final decision dropped the margin
// and gained a strictly larger scale.
func TestMarginFallback(t *testing.T) {
	// 595 - 2*28.35 = 538.3 wide available with margins. A 6000-wide
	// portrait image scales to ~0.0897 with margins, above 0.1 without.
	const w, h = 6000, 7000

	d := Compute(w, h, A4)

	if d.Margin != 0 {
		t.Fatalf("margin = %v, want 0 after fallback", d.Margin)
	}

	withMargin := fitScale(w, h, 595, 842, PreferredMargin)
	if withMargin >= minScale {
		t.Fatalf("test image does not trigger the fallback: margin scale %v", withMargin)
	}
	if d.Scale <= withMargin {
		t.Errorf("fallback scale %v not strictly larger than margin scale %v", d.Scale, withMargin)
	}
}

// TestPlacementCentered verifies the offsets center the scaled image.
func TestPlacementCentered(t *testing.T) {
	d := Compute(2000, 1000, A4)

	wantX := (d.PageWidth - 2000*d.Scale) / 2
	wantY := (d.PageHeight - 1000*d.Scale) / 2
	if math.Abs(d.OffsetX-wantX) > epsilon || math.Abs(d.OffsetY-wantY) > epsilon {
		t.Errorf("offset = (%v, %v), want (%v, %v)", d.OffsetX, d.OffsetY, wantX, wantY)
	}
}

// TestNoUpscaling verifies small images keep their native size.
func TestNoUpscaling(t *testing.T) {
	d := Compute(100, 50, A4)
	if d.Scale != 1 {
		t.Errorf("scale = %v, want 1 for an image smaller than the page", d.Scale)
	}
}

// TestProfileByName verifies the profile table and its default.
func TestProfileByName(t *testing.T) {
	if p := ProfileByName("Letter"); p.Width != 612 || p.Height != 792 {
		t.Errorf("Letter = %vx%v, want 612x792", p.Width, p.Height)
	}
	if p := ProfileByName("B17"); p.Name != "A4" {
		t.Errorf("unknown profile resolved to %s, want A4", p.Name)
	}
}
