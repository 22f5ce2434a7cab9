package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI 是 S3Operator 需要的 S3 API 子集
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientConfig 描述連線到 S3 相容儲存的方式
type ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// UsePathStyle 讓 MinIO 之類的服務使用 path-style 的網址
	UsePathStyle bool
}

// NewClient 依設定建立 S3 客戶端
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	const op = "NewClient"
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	loaded, err := awsCfg.LoadDefaultConfig(
		ctx,
		awsCfg.WithBaseEndpoint(cfg.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsCfg.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load S3 config, err=%w", op, err)
	}
	return s3.NewFromConfig(loaded, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

type S3Operator struct {
	// client 是 S3 客戶端。
	Client PutObjectAPI
	// Bucket 是 S3 存儲桶的名稱。
	Bucket string
	// PublicEndpoint 是 S3 存儲桶的公開 Endpoint。
	PublicEndpoint *url.URL
}

func NewS3Operator(client PutObjectAPI, bucket, publicBaseURL string) (*S3Operator, error) {
	const op = "NewS3Operator"
	if client == nil {
		return nil, fmt.Errorf("[%s] Client is nil", op)
	}
	if bucket == "" {
		return nil, fmt.Errorf("[%s] Bucket is empty", op)
	}
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &S3Operator{Client: client, Bucket: bucket, PublicEndpoint: publicEndpoint}, nil
}

// UploadFileToS3 上傳檔案並回傳公開網址
func (s *S3Operator) UploadFileToS3(ctx context.Context, key, contentType string, fileContent []byte) (string, error) {
	const op = "UploadFileToS3"
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(fileContent),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	uri := *s.PublicEndpoint
	uri.Path = path.Join("/", uri.Path, key)
	return uri.String(), nil
}
