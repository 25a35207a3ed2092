package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"groovie/pkg/domain"
)

const defaultURLExpiry = 24 * time.Hour

// ArtifactPublisher uploads artifacts as markdown and hands out presigned links.
type ArtifactPublisher struct {
	objects ObjectStore
	expiry  time.Duration
}

func NewArtifactPublisher(objects ObjectStore, expiry time.Duration) *ArtifactPublisher {
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &ArtifactPublisher{objects: objects, expiry: expiry}
}

// ArtifactKey is the object key of an artifact owned by userID.
func ArtifactKey(userID string, a domain.Artifact) string {
	return path.Join("artifacts", userID, string(a.Type), a.ID+".md")
}

// Publish stores the artifact and returns its download URL.
func (p *ArtifactPublisher) Publish(ctx context.Context, userID string, a domain.Artifact) (string, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(a.ID) == "" {
		return "", errors.New("artifact owner and id required")
	}
	body := renderMarkdown(a)
	key := ArtifactKey(userID, a)
	if err := p.objects.Put(ctx, key, strings.NewReader(body), int64(len(body)), "text/markdown; charset=utf-8"); err != nil {
		return "", err
	}
	url, err := p.objects.PresignGet(ctx, key, p.expiry)
	if err != nil {
		return "", err
	}
	return url, nil
}

// Remove deletes the objects of every artifact. All deletions are attempted.
func (p *ArtifactPublisher) Remove(ctx context.Context, userID string, artifacts []domain.Artifact) error {
	var errs []error
	for _, a := range artifacts {
		if a.ID == "" {
			continue
		}
		if err := p.objects.Delete(ctx, ArtifactKey(userID, a)); err != nil {
			errs = append(errs, fmt.Errorf("artifact %s: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

func renderMarkdown(a domain.Artifact) string {
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(a.Title)
	sb.WriteString("\n\n_")
	sb.WriteString(string(a.Type))
	if !a.CreatedAt.IsZero() {
		sb.WriteString(", ")
		sb.WriteString(a.CreatedAt.UTC().Format(time.RFC3339))
	}
	sb.WriteString("_\n\n")
	sb.WriteString(strings.TrimSpace(a.Content))
	sb.WriteString("\n")
	return sb.String()
}
