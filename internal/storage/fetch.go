package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yourusername/inventory-calculator/internal/apperror"
)

// ErrFileTooLarge は取得したファイルがサイズ上限を超えたことを表します。
var ErrFileTooLarge = errors.New("inventory file exceeds size limit")

// Fetcher は URL から在庫ファイルを取得します。
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher は Fetcher を作成します。maxBytes が 0 以下の場合はサイズを制限しません。
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch は rawURL の内容を取得します。呼び出し側が Close する必要があります。
// 接続失敗・4xx/5xx・200 以外の応答はクライアントエラーになります。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperror.Client(fmt.Sprintf("Invalid inventory file url: %q.", rawURL), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperror.Client(fmt.Sprintf("Invalid inventory file url: %q.", rawURL), err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperror.Client(fmt.Sprintf("Error connecting to inventory file server. Reason: %v.", err), err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, apperror.Client(fmt.Sprintf("Error accessing input file by url. Code: %d. Reason: %s.",
			resp.StatusCode, http.StatusText(resp.StatusCode)), nil)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperror.Client(fmt.Sprintf("Could not get input file content. Status: %d", resp.StatusCode), nil)
	}

	if f.maxBytes > 0 {
		if resp.ContentLength > f.maxBytes {
			resp.Body.Close()
			return nil, apperror.Client(fmt.Sprintf("Input file is too large: %d bytes (limit %d).", resp.ContentLength, f.maxBytes), ErrFileTooLarge)
		}
		return &limitedBody{rc: resp.Body, remaining: f.maxBytes}, nil
	}
	return resp.Body, nil
}

// limitedBody は上限を超えて読もうとした時点で ErrFileTooLarge を返します。
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		var probe [1]byte
		n, err := b.rc.Read(probe[:])
		if n > 0 {
			return 0, ErrFileTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}
