// Package media talks to the services that import, describe and transcribe lecture videos.
package media

import (
	"context"

	"github.com/raphaelgruber/askmycourse/internal/models"
)

// ImportedMedia is a downloaded media file ready for transcription.
type ImportedMedia struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
}

// Importer downloads the media behind a video reference.
type Importer interface {
	Import(ctx context.Context, fileID, url string) (ImportedMedia, error)
}

// TitleResolver looks up the display title of a video reference.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, source string) (string, error)
}

// Transcriber turns a media file into timestamped tokens.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]models.Token, error)
}
