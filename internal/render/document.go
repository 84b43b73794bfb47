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

// Package render turns message bodies and attachments into page-shaped
// artifacts ready for submission to the print spooler. Every document
// owns a temporary directory; the Release callback deletes it and must
// not fire while the spooler may still be reading the file.
package render

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mailprint/service/internal/layout"
)

// Document is a renderable artifact backed by temporary storage.
type Document struct {
	ID          string
	Path        string
	MIMEType    string
	Title       string
	Profile     layout.Profile
	Orientation layout.Orientation

	release func()
	once    sync.Once
}

// NewDocument wraps an existing artifact with a custom release hook.
// Used by collaborators that manage their own backing storage.
func NewDocument(title, path, mimeType string, release func()) *Document {
	return &Document{
		ID:          uuid.NewString(),
		Title:       title,
		Path:        path,
		MIMEType:    mimeType,
		Profile:     layout.A4,
		Orientation: layout.Portrait,
		release:     release,
	}
}

// Release deletes the document's backing temporary storage. Safe to
// call multiple times; only the first call has effect.
func (d *Document) Release() {
	if d.release == nil {
		return
	}
	d.once.Do(d.release)
}
