// 包 bucket：对象存储协作方的薄适配层（列举、取回、发布）
// 背景：核心流水线只消费本地工作目录内的文件；传输细节（认证、重试）不属于核心范围
package bucket

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hexstats/internal/logger"
)

// Client：S3 客户端包装
type Client struct {
	s3 *s3.Client
}

// Open：按可选 profile 建立客户端
func Open(ctx context.Context, profile string) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bucket: load aws config: %w", err)
	}
	return &Client{s3: s3.NewFromConfig(cfg)}, nil
}

// ListBaseNames：列举前缀下的对象，返回去掉扩展名的文件名（数据集名）
// 约束：跳过"目录"占位键；结果排序去重，保证批处理顺序稳定
func (c *Client) ListBaseNames(ctx context.Context, bucket, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var token *string
	for {
		out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("bucket: list %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			name := path.Base(aws.ToString(obj.Key))
			if name == "" || strings.HasSuffix(aws.ToString(obj.Key), "/") {
				continue
			}
			if i := strings.LastIndex(name, "."); i > 0 {
				name = name[:i]
			}
			seen[name] = struct{}{}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Download：取回对象到本地路径
func (c *Client) Download(ctx context.Context, bucket, key, dst string) error {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("bucket: get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("bucket: download %s/%s: %w", bucket, key, err)
	}
	logger.L().Debug("bucket_download_ok", "bucket", bucket, "key", key, "dst", dst)
	return nil
}

// Upload：发布本地文件到指定位置
func (c *Client) Upload(ctx context.Context, src, bucket, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("bucket: put %s/%s: %w", bucket, key, err)
	}
	logger.L().Info("bucket_upload_ok", "bucket", bucket, "key", key)
	return nil
}
