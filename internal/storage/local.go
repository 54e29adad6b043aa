// Package storage は在庫ファイルの取得と保存を担うストレージ抽象化レイヤーを提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const referenceScheme = "local://"

// Local はローカルファイルシステム上のバケットにオブジェクトを保存します。
// 参照は local://<bucket>/<key> 形式です。
type Local struct {
	root   string
	bucket string
}

// NewLocal は Local を作成し、バケットディレクトリを用意します。
func NewLocal(root, bucket string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	if !validSegment(bucket) {
		return nil, fmt.Errorf("invalid bucket name: %q", bucket)
	}
	l := &Local{root: root, bucket: bucket}
	if err := os.MkdirAll(l.bucketDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return l, nil
}

// Put は r の内容を key として保存し、参照を返します。
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if !validSegment(key) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// 書き込み途中のファイルを読まれないよう一時ファイル経由で配置する
	tmp, err := os.CreateTemp(l.bucketDir(), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.objectPath(key)); err != nil {
		return "", fmt.Errorf("failed to commit object: %w", err)
	}
	return l.Reference(key), nil
}

// Open は参照が指すオブジェクトを開きます。
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := l.keyOf(ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.objectPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", ref, err)
	}
	return f, nil
}

// Reference は key に対応する参照を返します。
func (l *Local) Reference(key string) string {
	return referenceScheme + l.bucket + "/" + key
}

func (l *Local) keyOf(ref string) (string, error) {
	rest, ok := strings.CutPrefix(ref, referenceScheme)
	if !ok {
		return "", fmt.Errorf("unsupported reference: %q", ref)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket != l.bucket {
		return "", fmt.Errorf("reference %q does not belong to bucket %q", ref, l.bucket)
	}
	if !validSegment(key) {
		return "", fmt.Errorf("invalid object key in reference: %q", ref)
	}
	return key, nil
}

func (l *Local) bucketDir() string {
	return filepath.Join(l.root, l.bucket)
}

func (l *Local) objectPath(key string) string {
	return filepath.Join(l.bucketDir(), key)
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
