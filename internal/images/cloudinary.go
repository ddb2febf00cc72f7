package images

import (
	"context"
	"fmt"
	"io"

	"storefront/internal/config"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

// Store holds catalog imagery. Every catalog entity keeps its assets under a
// folder derived from its custom ID, so cascade deletion can remove the whole
// folder in one call.
type Store interface {
	Upload(ctx context.Context, file io.Reader, folder, publicID string) (string, error)
	Delete(ctx context.Context, publicID string) error
	DeleteFolder(ctx context.Context, folder string) error
}

type cloudinaryStore struct {
	cld        *cloudinary.Cloudinary
	baseFolder string
	logger     *zap.Logger
}

// NewCloudinaryStore creates a Store backed by Cloudinary
func NewCloudinaryStore(cfg config.CloudinaryConfig, logger *zap.Logger) (Store, error) {
	cld, err := cloudinary.NewFromURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}

	return &cloudinaryStore{
		cld:        cld,
		baseFolder: cfg.UploadsFolder,
		logger:     logger,
	}, nil
}

// Upload stores an image under baseFolder/folder and returns its public URL
func (s *cloudinaryStore) Upload(ctx context.Context, file io.Reader, folder, publicID string) (string, error) {
	resp, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:   s.baseFolder + "/" + folder,
		PublicID: publicID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	s.logger.Debug("Uploaded image",
		zap.String("folder", folder),
		zap.String("public_id", resp.PublicID))

	return resp.SecureURL, nil
}

// Delete removes a single asset
func (s *cloudinaryStore) Delete(ctx context.Context, publicID string) error {
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// DeleteFolder removes every asset under the folder, then the folder itself
func (s *cloudinaryStore) DeleteFolder(ctx context.Context, folder string) error {
	prefix := s.baseFolder + "/" + folder
	if _, err := s.cld.Admin.DeleteAssetsByPrefix(ctx, admin.DeleteAssetsByPrefixParams{
		Prefix: []string{prefix},
	}); err != nil {
		return fmt.Errorf("failed to delete folder assets: %w", err)
	}
	if _, err := s.cld.Admin.DeleteFolder(ctx, admin.DeleteFolderParams{Folder: prefix}); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}

	s.logger.Debug("Deleted image folder", zap.String("folder", prefix))
	return nil
}
