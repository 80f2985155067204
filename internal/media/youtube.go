package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// ErrNoAudio is returned when a video has no downloadable audio stream.
var ErrNoAudio = errors.New("no audio stream available")

// YouTube imports audio and resolves titles for YouTube videos.
type YouTube struct {
	client   *youtube.Client
	mediaDir string
}

var (
	_ Importer      = (*YouTube)(nil)
	_ TitleResolver = (*YouTube)(nil)
)

// NewYouTube creates a YouTube importer writing into mediaDir.
func NewYouTube(mediaDir string) *YouTube {
	return &YouTube{client: &youtube.Client{}, mediaDir: mediaDir}
}

// ResolveTitle returns the video's title.
func (y *YouTube) ResolveTitle(ctx context.Context, source string) (string, error) {
	video, err := y.client.GetVideoContext(ctx, source)
	if err != nil {
		return "", fmt.Errorf("lookup video %s: %w", source, err)
	}
	return video.Title, nil
}

// Import downloads the best audio stream of the video to <mediaDir>/<fileID><ext>.
func (y *YouTube) Import(ctx context.Context, fileID, url string) (ImportedMedia, error) {
	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		return ImportedMedia{}, fmt.Errorf("lookup video %s: %w", url, err)
	}

	formats := video.Formats.Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		return ImportedMedia{}, fmt.Errorf("import %s: %w", url, ErrNoAudio)
	}
	format := &formats[0]

	if err := os.MkdirAll(y.mediaDir, 0o755); err != nil {
		return ImportedMedia{}, fmt.Errorf("create media dir: %w", err)
	}

	stream, size, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return ImportedMedia{}, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	path := filepath.Join(y.mediaDir, fileID+extensionFor(format.MimeType))
	f, err := os.Create(path)
	if err != nil {
		return ImportedMedia{}, fmt.Errorf("create media file: %w", err)
	}
	written, err := io.Copy(f, stream)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return ImportedMedia{}, fmt.Errorf("download %s: %w", url, err)
	}

	slog.Info("media imported", "file_id", fileID, "title", video.Title, "bytes", written, "expected_bytes", size, "mime_type", format.MimeType)
	return ImportedMedia{Path: path, MimeType: mimeBase(format.MimeType)}, nil
}

// mimeBase strips parameters such as codecs from a MIME type.
func mimeBase(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(base)
}

// extensionFor picks a file extension the transcription API accepts.
func extensionFor(mimeType string) string {
	switch mimeBase(mimeType) {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".mp4"
	}
}
