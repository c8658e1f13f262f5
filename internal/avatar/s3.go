package avatar

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI — часть S3-клиента, нужная хранилищу.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store хранит фотографии в бакете S3 (или совместимом: MinIO, LocalStack).
type S3Store struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Store создаёт хранилище поверх готового клиента.
func NewS3Store(client PutObjectAPI, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Client создаёт S3-клиент из стандартной цепочки AWS-конфигурации
// (переменные окружения, профиль, роль). endpoint переопределяет адрес API.
func NewS3Client(ctx context.Context, endpoint string) (*s3.Client, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка AWS-конфигурации: %w", err)
	}

	return s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Save загружает объект и возвращает путь вида s3://bucket/key.
func (s *S3Store) Save(ctx context.Context, externalID string, data []byte) (string, error) {
	name, err := objectName(externalID)
	if err != nil {
		return "", err
	}
	key := s.prefix + name

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("image/jpeg"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("загрузка аватара в s3://%s/%s: %w", s.bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
