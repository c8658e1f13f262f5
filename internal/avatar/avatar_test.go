package avatar

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestObjectName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"9911", "9911.jpg", false},
		{"A-17_b", "A-17_b.jpg", false},
		{"../../etc/passwd", "", true},
		{"../", "", true},
		{"12/3", "", true},
		{"12 3", "", true},
		{"123\n", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := objectName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("objectName(%q) ошибка = %v, ожидается ошибка: %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("objectName(%q) = %q, ожидается %q", tt.in, got, tt.want)
		}
	}
}

func TestFSStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "socios")
	store := NewFSStore(dir, "storage/socios")

	path, err := store.Save(context.Background(), "9911", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path != "storage/socios/9911.jpg" {
		t.Errorf("path = %q, ожидается storage/socios/9911.jpg", path)
	}

	data, err := os.ReadFile(filepath.Join(dir, "9911.jpg"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("содержимое = %q", data)
	}

	// Перезапись и отсутствие временных файлов
	if _, err := store.Save(context.Background(), "9911", []byte("v2")); err != nil {
		t.Fatalf("повторный Save: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("файлов в каталоге = %d, ожидается 1", len(entries))
	}
}

func TestFSStore_InvalidID(t *testing.T) {
	store := NewFSStore(t.TempDir(), "storage/socios")
	if _, err := store.Save(context.Background(), "/..", []byte("x")); !errors.Is(err, ErrInvalidID) {
		t.Errorf("ошибка = %v, ожидается ErrInvalidID", err)
	}
}

// Идентификаторы, отличающиеся только недопустимыми символами,
// не перезаписывают чужое фото.
func TestFSStore_NoCollisionOnUnsafeID(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir, "storage/socios")
	ctx := context.Background()

	if _, err := store.Save(ctx, "123", []byte("owner")); err != nil {
		t.Fatalf("Save(123): %v", err)
	}
	if _, err := store.Save(ctx, "12/3", []byte("other")); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Save(12/3) = %v, ожидается ErrInvalidID", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "123.jpg"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "owner" {
		t.Errorf("содержимое 123.jpg = %q, фото перезаписано", data)
	}
}

// mockS3 запоминает последний PutObject.
type mockS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.input = params
	m.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Save(t *testing.T) {
	mock := &mockS3{}
	store := NewS3Store(mock, "avatars", "socios")

	path, err := store.Save(context.Background(), "9911", []byte("jpeg"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path != "s3://avatars/socios/9911.jpg" {
		t.Errorf("path = %q", path)
	}
	if aws.ToString(mock.input.Bucket) != "avatars" || aws.ToString(mock.input.Key) != "socios/9911.jpg" {
		t.Errorf("bucket/key = %s/%s", aws.ToString(mock.input.Bucket), aws.ToString(mock.input.Key))
	}
	if aws.ToString(mock.input.ContentType) != "image/jpeg" {
		t.Errorf("ContentType = %q", aws.ToString(mock.input.ContentType))
	}
	if !bytes.Equal(mock.body, []byte("jpeg")) {
		t.Errorf("тело = %q", mock.body)
	}
}

func TestS3Store_Error(t *testing.T) {
	store := NewS3Store(&mockS3{err: errors.New("access denied")}, "avatars", "")
	if _, err := store.Save(context.Background(), "1", []byte("x")); err == nil {
		t.Error("ожидается ошибка загрузки")
	}
}
