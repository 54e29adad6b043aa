package storage

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"regexp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yourusername/inventory-calculator/internal/apperror"
)

const sniffSize = 3072

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// ObjectStore は在庫ファイルの永続化先です。
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Sources は在庫ファイルの取得・保存・再読込をまとめます。
type Sources struct {
	fetcher *Fetcher
	objects ObjectStore
	newKey  func() string
}

// NewSources は Sources を作成します。
func NewSources(fetcher *Fetcher, objects ObjectStore) (*Sources, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if objects == nil {
		return nil, errors.New("object store is nil")
	}
	return &Sources{
		fetcher: fetcher,
		objects: objects,
		newKey:  uuid.NewString,
	}, nil
}

// Fetch は URL から在庫ファイルを取得します。
func (s *Sources) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return s.fetcher.Fetch(ctx, rawURL)
}

// Store は r の内容を新しい一意なキーで保存し、永続参照を返します。
// name（元のURLやファイル名）は拡張子の決定にだけ使います。
func (s *Sources) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	ext := extensionOf(name)
	if ext == "" {
		head, err := br.Peek(sniffSize)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", storeError(err)
		}
		ext = mimetype.Detect(head).Extension()
	}

	ref, err := s.objects.Put(ctx, s.newKey()+ext, br)
	if err != nil {
		return "", storeError(err)
	}
	return ref, nil
}

func storeError(err error) error {
	if errors.Is(err, ErrFileTooLarge) {
		return apperror.Client("Input file exceeds the size limit.", err)
	}
	return apperror.Service("Unable to store inventory file", err)
}

// Open は永続参照が指す在庫ファイルを開きます。
func (s *Sources) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	rc, err := s.objects.Open(ctx, ref)
	if err != nil {
		return nil, apperror.Service("Unable to open inventory file", err)
	}
	return rc, nil
}

func extensionOf(name string) string {
	p := name
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := path.Ext(p)
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}
