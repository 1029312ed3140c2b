package service

import (
	"errors"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/media"
	"github.com/noah-isme/uni-contrib-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
}

type contentInspector interface {
	Detect(data []byte) (string, error)
}

// Uploader validates uploads by content, stores them and derives image thumbnails.
type Uploader struct {
	storage    fileStorage
	inspector  contentInspector
	thumbWidth int
	logger     *zap.Logger
}

// NewUploader constructs an Uploader.
func NewUploader(store fileStorage, inspector contentInspector, thumbWidth int, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{storage: store, inspector: inspector, thumbWidth: thumbWidth, logger: logger}
}

// Store saves one upload under folder. A failed thumbnail is logged and skipped.
func (u *Uploader) Store(folder string, up models.Upload) (models.ContributionFile, error) {
	mime, err := u.inspector.Detect(up.Data)
	if err != nil {
		if errors.Is(err, media.ErrTypeNotAllowed) {
			return models.ContributionFile{}, appErrors.Wrap(err, appErrors.ErrUnsupportedMedia.Code, appErrors.ErrUnsupportedMedia.Status, up.Name+": unsupported file type")
		}
		return models.ContributionFile{}, validationError(err, up.Name+": invalid file")
	}

	rel, err := u.storage.Save(storage.UniqueName(folder, up.Name), up.Data)
	if err != nil {
		return models.ContributionFile{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	file := models.ContributionFile{Path: rel, Name: up.Name, MIMEType: mime, Size: int64(len(up.Data))}

	if media.IsImage(mime) {
		thumb, err := media.Thumbnail(up.Data, u.thumbWidth)
		if err != nil {
			u.logger.Warn("thumbnail generation failed", zap.String("file", rel), zap.Error(err))
			return file, nil
		}
		base := strings.TrimSuffix(path.Base(up.Name), path.Ext(up.Name)) + ".jpg"
		thumbRel, err := u.storage.Save(storage.UniqueName(path.Join(folder, "thumbs"), base), thumb)
		if err != nil {
			u.logger.Warn("thumbnail store failed", zap.String("file", rel), zap.Error(err))
			return file, nil
		}
		file.ThumbnailPath = thumbRel
	}
	return file, nil
}

// StoreAll stores uploads in order, removing already stored files when one fails.
func (u *Uploader) StoreAll(folder string, uploads []models.Upload) (models.ContributionFiles, error) {
	files := make(models.ContributionFiles, 0, len(uploads))
	for _, up := range uploads {
		file, err := u.Store(folder, up)
		if err != nil {
			u.Remove(files...)
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// Remove deletes stored files and their thumbnails.
func (u *Uploader) Remove(files ...models.ContributionFile) {
	for _, f := range files {
		for _, p := range []string{f.Path, f.ThumbnailPath} {
			if p == "" {
				continue
			}
			if err := u.storage.Delete(p); err != nil {
				u.logger.Warn("failed to delete stored file", zap.String("file", p), zap.Error(err))
			}
		}
	}
}
