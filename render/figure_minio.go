package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// MinIOFigureStore keeps rendered figures as JSON objects in a bucket.
type MinIOFigureStore struct {
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger
}

func NewMinIOFigureStore(minioClient *minio.Client, bucketName string, logger *zap.Logger) *MinIOFigureStore {
	return &MinIOFigureStore{
		minioClient: minioClient,
		bucketName:  bucketName,
		logger:      logger,
	}
}

// MakeBucket creates the bucket unless we already own it.
func (storage *MinIOFigureStore) MakeBucket(ctx context.Context) error {
	err := storage.minioClient.MakeBucket(ctx, storage.bucketName, minio.MakeBucketOptions{})
	if err != nil {
		exists, errBucketExists := storage.minioClient.BucketExists(ctx, storage.bucketName)
		if errBucketExists == nil && exists {
			storage.logger.Info("Bucket already exists", zap.String("bucket", storage.bucketName))
			return nil
		}
		return err
	}
	storage.logger.Info("Bucket created", zap.String("bucket", storage.bucketName))
	return nil
}

func objectName(key FigureKey) string {
	return fmt.Sprintf("figures/%s.json", key.Digest())
}

func (storage *MinIOFigureStore) Get(ctx context.Context, key FigureKey) (*Figure, bool, error) {
	object, err := storage.minioClient.GetObject(ctx, storage.bucketName, objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer object.Close()

	b, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, err
	}

	var figure Figure
	if err := json.Unmarshal(b, &figure); err != nil {
		return nil, false, err
	}
	return &figure, true, nil
}

func (storage *MinIOFigureStore) Put(ctx context.Context, key FigureKey, figure *Figure) error {
	b, err := json.Marshal(figure)
	if err != nil {
		return err
	}
	_, err = storage.minioClient.PutObject(ctx, storage.bucketName, objectName(key), bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}
