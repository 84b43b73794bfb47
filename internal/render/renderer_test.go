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

package render

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	return New(Options{TempRoot: t.TempDir()})
}

func TestRenderTextWritesAndReleases(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.RenderText("shopping list", "milk\neggs\n")
	if err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	if doc.MIMEType != "text/plain" {
		t.Errorf("MIMEType = %q, want text/plain", doc.MIMEType)
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		t.Fatalf("reading rendered text: %v", err)
	}
	if string(data) != "milk\neggs\n" {
		t.Errorf("rendered content = %q", data)
	}

	doc.Release()
	if _, err := os.Stat(doc.Path); !os.IsNotExist(err) {
		t.Error("Release should remove the backing file")
	}
	// A second Release must be a no-op.
	doc.Release()
}

func TestRenderHTMLRawWhenConversionDisabled(t *testing.T) {
	r := New(Options{TempRoot: t.TempDir(), ConvertHTMLToPDF: false})

	doc, err := r.RenderHTML(context.Background(), "newsletter", "<p>hello</p>")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	defer doc.Release()

	if doc.MIMEType != "text/html" {
		t.Errorf("MIMEType = %q, want text/html with conversion off", doc.MIMEType)
	}
	if !strings.HasSuffix(doc.Path, ".html") {
		t.Errorf("path = %q, want .html artifact", doc.Path)
	}
}

func TestRenderAttachmentVerbatim(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.RenderAttachment(context.Background(), "report.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("payload"))
	if err != nil {
		t.Fatalf("RenderAttachment: %v", err)
	}
	defer doc.Release()

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("artifact content = %q, want verbatim payload", data)
	}
}

func TestRenderImageRejectsUndecodable(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.RenderAttachment(context.Background(), "broken.png", "image/png", []byte("not an image"))
	if err == nil {
		t.Fatal("undecodable image should be rejected")
	}
	var layoutErr *LayoutError
	if !errors.As(err, &layoutErr) {
		t.Errorf("error = %v, want LayoutError", err)
	}
	if layoutErr.Name != "broken.png" {
		t.Errorf("LayoutError names %q, want broken.png", layoutErr.Name)
	}
}
