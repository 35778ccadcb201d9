// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/log"
)

// Client 封装了对单个存储桶的对象读写。
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 初始化 MinIO 客户端并确保存储桶存在，不存在则创建。
func NewClient(ctx context.Context, cfg config.MinIOConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperr.WrapConfig("failed to create minio client", err)
	}

	exists, err := mc.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, apperr.WrapInfra("failed to check minio bucket", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := mc.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, apperr.WrapInfra("failed to create minio bucket", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	return &Client{mc: mc, bucket: cfg.BucketName}, nil
}

// Put 将 reader 中的内容以 objectName 写入存储桶。
func (c *Client) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		log.Errorf("上传对象 '%s' 失败: %v", objectName, err)
		return apperr.WrapInfra("failed to store object", err)
	}
	return nil
}

// Get 返回对象内容的读取器，调用方负责关闭。
func (c *Client) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		log.Errorf("读取对象 '%s' 失败: %v", objectName, err)
		return nil, apperr.WrapInfra("failed to fetch object", err)
	}
	return obj, nil
}

// PresignedURL 为对象生成限时下载链接。
func (c *Client) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, objectName, expiry, nil)
	if err != nil {
		log.Errorf("生成对象 '%s' 的下载链接失败: %v", objectName, err)
		return "", apperr.WrapInfra("failed to presign object url", err)
	}
	return u.String(), nil
}
