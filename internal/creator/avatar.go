package creator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
	"github.com/creatorships/dashboard/internal/security"
)

// DefaultAvatarMaxSize は画像の最大サイズ（2MB）。
const DefaultAvatarMaxSize int64 = 2 << 20

// Avatar はプロキシした画像。
type Avatar struct {
	ContentType string
	Data        []byte
}

// AvatarProxy はクリエイター画像を取得して返す。
// 画像URLはバックエンドのデータに由来するため、SSRF防止クライアントで取得する。
type AvatarProxy struct {
	repo    repository.CreatorRepository
	guard   security.SSRFGuardService
	client  *http.Client
	maxSize int64
}

// NewAvatarProxy はAvatarProxyの新しいインスタンスを生成する。
func NewAvatarProxy(repo repository.CreatorRepository, guard security.SSRFGuardService, timeout time.Duration, maxSize int64) *AvatarProxy {
	if maxSize <= 0 {
		maxSize = DefaultAvatarMaxSize
	}
	return &AvatarProxy{
		repo:    repo,
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		maxSize: maxSize,
	}
}

// Fetch はクリエイターの画像を取得する。
func (p *AvatarProxy) Fetch(ctx context.Context, creatorID string) (*Avatar, error) {
	c, err := p.repo.FindByID(ctx, creatorID)
	if err != nil {
		return nil, model.NewTransientError("クリエイター情報を取得できませんでした")
	}
	if c == nil {
		return nil, model.NewCreatorNotFoundError(creatorID)
	}
	if c.Image == "" {
		return nil, model.NewAvatarUnavailableError()
	}

	a, err := p.get(ctx, c.Image)
	if err != nil {
		slog.Warn("avatar fetch failed",
			slog.String("creator_id", creatorID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAvatarUnavailableError()
	}
	return a, nil
}

func (p *AvatarProxy) get(ctx context.Context, rawURL string) (*Avatar, error) {
	if err := p.guard.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > p.maxSize {
		return nil, fmt.Errorf("image exceeds %d bytes", p.maxSize)
	}
	return &Avatar{ContentType: mediaType, Data: data}, nil
}
