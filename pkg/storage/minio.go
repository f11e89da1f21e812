// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tzappu-go/internal/config"
	"tzappu-go/pkg/log"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// Exporter 把导出文件写入存储桶并生成预签名下载链接。
type Exporter struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewExporter 创建一个绑定到配置存储桶的 Exporter。
func NewExporter(client *minio.Client, cfg config.MinIOConfig) *Exporter {
	return &Exporter{client: client, bucket: cfg.BucketName, expiry: cfg.ExportExpiry()}
}

// Export 上传 JSON 内容，同名对象会被覆盖。
func (e *Exporter) Export(ctx context.Context, objectName string, data []byte) (string, error) {
	_, err := e.client.PutObject(ctx, e.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("上传导出文件失败: %w", err)
	}
	return e.PresignedURL(ctx, objectName)
}

// PresignedURL generates a presigned URL for a given object.
func (e *Exporter) PresignedURL(ctx context.Context, objectName string) (string, error) {
	presignedURL, err := e.client.PresignedGetObject(ctx, e.bucket, objectName, e.expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
