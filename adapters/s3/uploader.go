//go:generate mockgen -package=s3 -destination=mock.go . PutObjectAPI,ImageStore,ObjectUploader

package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auctionhall/models"
)

var ErrRateLimited = errors.New("upload rate limit reached")

// InvalidImageError 表示上傳內容不是允許的圖片類型
type InvalidImageError struct {
	MIMEType string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("Invalid image type: %s", e.MIMEType)
}

// ImageStore 記錄圖片上傳紀錄，用於計算上傳頻率
type ImageStore interface {
	CountImagesSince(ctx context.Context, uploaderID uuid.UUID, since time.Time) (int64, error)
	CreateImage(ctx context.Context, image *models.Image) error
}

type ObjectUploader interface {
	UploadFileToS3(ctx context.Context, key, contentType string, fileContent []byte) (string, error)
}

type uploaderOptions struct {
	logger           *slog.Logger
	maxSize          int64
	rateLimitPerHour int64
	clock            func() time.Time
}

type UploaderOption func(*uploaderOptions)

func WithUploaderLogger(logger *slog.Logger) UploaderOption {
	return func(o *uploaderOptions) {
		o.logger = logger
	}
}

// WithUploaderMaxSize 設置單張圖片的大小上限
func WithUploaderMaxSize(n int64) UploaderOption {
	return func(o *uploaderOptions) {
		o.maxSize = n
	}
}

// WithUploaderRateLimit 設置每位使用者每小時可上傳的數量，0 表示不限制
func WithUploaderRateLimit(perHour int64) UploaderOption {
	return func(o *uploaderOptions) {
		o.rateLimitPerHour = perHour
	}
}

func WithUploaderClock(clock func() time.Time) UploaderOption {
	return func(o *uploaderOptions) {
		o.clock = clock
	}
}

// ImageUploader 檢查並儲存拍賣圖片
type ImageUploader struct {
	store   ImageStore
	objects ObjectUploader
	options uploaderOptions
	logger  *slog.Logger
}

func NewImageUploader(store ImageStore, objects ObjectUploader, opts ...UploaderOption) (*ImageUploader, error) {
	const op = "NewImageUploader"
	if store == nil || objects == nil {
		return nil, fmt.Errorf("[%s] Store and object uploader are required", op)
	}
	options := uploaderOptions{
		logger:  slog.Default(),
		maxSize: 5 << 20,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &ImageUploader{
		store:   store,
		objects: objects,
		options: options,
		logger:  options.logger.With(slog.String("caller", "ImageUploader")),
	}, nil
}

// Upload 限制圖片
//  1. 每小時上傳數量
//  2. 大小上限
//  3. MIME 類型為不包含腳本的圖片檔案
func (u *ImageUploader) Upload(ctx context.Context, uploaderID uuid.UUID, body io.Reader) (models.Image, error) {
	const op = "Upload"
	now := u.options.clock()
	if u.options.rateLimitPerHour > 0 {
		count, err := u.store.CountImagesSince(ctx, uploaderID, now.Add(-time.Hour))
		if err != nil {
			return models.Image{}, fmt.Errorf("[%s] Fail to count uploaded images, err=%w", op, err)
		}
		if count >= u.options.rateLimitPerHour {
			return models.Image{}, ErrRateLimited
		}
	}

	file, err := ReadAllLimited(body, u.options.maxSize)
	if err != nil {
		var limit *ReachLimitError
		if errors.As(err, &limit) {
			return models.Image{}, err
		}
		return models.Image{}, fmt.Errorf("[%s] Fail to read image, err=%w", op, err)
	}
	mimeType, ext, ok := DetectImage(file)
	if !ok {
		return models.Image{}, &InvalidImageError{MIMEType: mimeType}
	}

	// 透過S3 API儲存圖片
	id := uuid.New()
	url, err := u.objects.UploadFileToS3(ctx, id.String()+"."+ext, mimeType, file)
	if err != nil {
		return models.Image{}, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err)
	}
	image := models.Image{
		ID:         id,
		UploaderID: uploaderID,
		Url:        url,
		CreatedAt:  now.UTC(),
	}
	if err := u.store.CreateImage(ctx, &image); err != nil {
		return models.Image{}, fmt.Errorf("[%s] Fail to create image, err=%w", op, err)
	}
	u.logger.Info("Image uploaded", slog.String("uploader", uploaderID.String()), slog.String("url", url))
	return image, nil
}
