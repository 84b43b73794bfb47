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
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	// Registered decoders for attachment measuring.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/mailprint/service/internal/layout"
)

// LayoutError reports an attachment whose dimensions cannot be placed
// on a page (zero-area or undecodable image). It fails only the part it
// names, never the whole message.
type LayoutError struct {
	Name   string
	Width  int
	Height int
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("attachment %s has unprintable dimensions %dx%d", e.Name, e.Width, e.Height)
}

// PageLimitError reports a document exceeding the configured page cap.
type PageLimitError struct {
	Name  string
	Pages int
	Limit int
}

func (e *PageLimitError) Error() string {
	return fmt.Sprintf("document %s has %d pages, limit is %d", e.Name, e.Pages, e.Limit)
}

// Options configures a Renderer.
type Options struct {
	// Profile is the target page profile for generated documents.
	Profile layout.Profile

	// ConvertHTMLToPDF runs HTML bodies through wkhtmltopdf. When off,
	// the raw HTML file is handed to the spooler as-is.
	ConvertHTMLToPDF bool

	// MaxPages rejects PDF documents longer than this. Zero disables
	// the check.
	MaxPages int

	// HTMLConverter is the wkhtmltopdf binary; defaults to the one on
	// PATH.
	HTMLConverter string

	// TempRoot is where per-document temp dirs are created; defaults to
	// the system temp dir.
	TempRoot string
}

// Renderer produces Documents from message content.
type Renderer struct {
	opts Options
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	if opts.Profile.Name == "" {
		opts.Profile = layout.A4
	}
	if opts.HTMLConverter == "" {
		opts.HTMLConverter = "wkhtmltopdf"
	}
	return &Renderer{opts: opts}
}

// newWorkspace creates a per-document temp dir and the Document shell
// whose Release removes it.
func (r *Renderer) newWorkspace(title string) (*Document, string, error) {
	dir, err := os.MkdirTemp(r.opts.TempRoot, "mailprint-")
	if err != nil {
		return nil, "", fmt.Errorf("create document workspace: %w", err)
	}
	doc := &Document{
		ID:          uuid.NewString(),
		Title:       title,
		Profile:     r.opts.Profile,
		Orientation: layout.Portrait,
		release: func() {
			if err := os.RemoveAll(dir); err != nil {
				slog.Warn("failed to remove document workspace", "dir", dir, "error", err)
			}
		},
	}
	return doc, dir, nil
}

// RenderText writes a plain text body to a printable text file.
func (r *Renderer) RenderText(title, text string) (*Document, error) {
	doc, dir, err := r.newWorkspace(title)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, doc.ID+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		doc.Release()
		return nil, fmt.Errorf("write text document: %w", err)
	}

	doc.Path = path
	doc.MIMEType = "text/plain"
	return doc, nil
}

// RenderHTML converts an HTML body to a page-shaped PDF with 20mm
// margins via the external converter, or stores the raw HTML when
// conversion is disabled.
func (r *Renderer) RenderHTML(ctx context.Context, title, html string) (*Document, error) {
	doc, dir, err := r.newWorkspace(title)
	if err != nil {
		return nil, err
	}

	htmlPath := filepath.Join(dir, doc.ID+".html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		doc.Release()
		return nil, fmt.Errorf("write html document: %w", err)
	}

	if !r.opts.ConvertHTMLToPDF {
		doc.Path = htmlPath
		doc.MIMEType = "text/html"
		return doc, nil
	}

	pdfPath := filepath.Join(dir, doc.ID+".pdf")
	cmd := exec.CommandContext(ctx, r.opts.HTMLConverter,
		"--page-size", r.opts.Profile.Name,
		"--orientation", "Portrait",
		"--margin-top", "20mm",
		"--margin-bottom", "20mm",
		"--margin-left", "20mm",
		"--margin-right", "20mm",
		htmlPath,
		pdfPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		doc.Release()
		return nil, fmt.Errorf("convert html to pdf: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	if err := r.checkPageLimit(pdfPath, title); err != nil {
		doc.Release()
		return nil, err
	}

	doc.Path = pdfPath
	doc.MIMEType = "application/pdf"
	return doc, nil
}

// RenderAttachment turns one attachment into a document. Images are laid
// out on the page profile and wrapped in a single-page PDF; PDFs pass
// through with a page-count guard; everything else is stored verbatim
// for the spooler's own filters.
func (r *Renderer) RenderAttachment(ctx context.Context, name, mimeType string, data []byte) (*Document, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return r.renderImage(name, data)
	case mimeType == "application/pdf":
		return r.renderPDF(name, data)
	default:
		return r.renderVerbatim(name, mimeType, data)
	}
}

// renderImage measures the image, computes its page placement, and
// builds a one-page PDF with the image scaled and centered.
func (r *Renderer) renderImage(name string, data []byte) (*Document, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &LayoutError{Name: name}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &LayoutError{Name: name, Width: cfg.Width, Height: cfg.Height}
	}

	doc, dir, err := r.newWorkspace(name)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".img"
	}
	imgPath := filepath.Join(dir, doc.ID+ext)
	if err := os.WriteFile(imgPath, data, 0o644); err != nil {
		doc.Release()
		return nil, fmt.Errorf("write image %s: %w", name, err)
	}

	decision := layout.Compute(cfg.Width, cfg.Height, r.opts.Profile)

	form := r.opts.Profile.Name
	if decision.Orientation == layout.Landscape {
		form += "L"
	}
	detail := fmt.Sprintf("form:%s, pos:bl, off:%.2f %.2f, scale:%.4f abs",
		form, decision.OffsetX, decision.OffsetY, decision.Scale)
	imp, err := api.Import(detail, types.POINTS)
	if err != nil {
		doc.Release()
		return nil, fmt.Errorf("build image placement %q: %w", detail, err)
	}

	pdfPath := filepath.Join(dir, doc.ID+".pdf")
	if err := api.ImportImagesFile([]string{imgPath}, pdfPath, imp, nil); err != nil {
		doc.Release()
		return nil, fmt.Errorf("place image %s on page: %w", name, err)
	}

	slog.Debug("image laid out",
		"attachment", name,
		"dimensions", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"orientation", decision.Orientation,
		"scale", decision.Scale,
		"margin", decision.Margin,
	)

	doc.Path = pdfPath
	doc.MIMEType = "application/pdf"
	doc.Orientation = decision.Orientation
	return doc, nil
}

// renderPDF stores a PDF attachment and enforces the page cap.
func (r *Renderer) renderPDF(name string, data []byte) (*Document, error) {
	doc, dir, err := r.newWorkspace(name)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, doc.ID+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		doc.Release()
		return nil, fmt.Errorf("write pdf %s: %w", name, err)
	}

	if err := r.checkPageLimit(path, name); err != nil {
		doc.Release()
		return nil, err
	}

	doc.Path = path
	doc.MIMEType = "application/pdf"
	return doc, nil
}

// renderVerbatim stores an attachment unmodified.
func (r *Renderer) renderVerbatim(name, mimeType string, data []byte) (*Document, error) {
	doc, dir, err := r.newWorkspace(name)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(name)
	path := filepath.Join(dir, doc.ID+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		doc.Release()
		return nil, fmt.Errorf("write attachment %s: %w", name, err)
	}

	doc.Path = path
	doc.MIMEType = mimeType
	return doc, nil
}

func (r *Renderer) checkPageLimit(pdfPath, name string) error {
	if r.opts.MaxPages <= 0 {
		return nil
	}
	pages, err := api.PageCountFile(pdfPath)
	if err != nil {
		return fmt.Errorf("count pages of %s: %w", name, err)
	}
	if pages > r.opts.MaxPages {
		return &PageLimitError{Name: name, Pages: pages, Limit: r.opts.MaxPages}
	}
	return nil
}
