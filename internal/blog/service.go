// SPDX-License-Identifier: AGPL-3.0-only
package blog

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"strconv"

	"github.com/fluffyriot/foodies/internal/gateway"
	"github.com/fluffyriot/foodies/internal/imageenc"
)

const ImageField = "upload_images[]"

// Gateway is the part of gateway.Client the blog endpoints need.
type Gateway interface {
	Get(ctx context.Context, path string, query url.Values, requiresAuth bool, out any) error
	PostMultipart(ctx context.Context, path string, fields map[string]string, files []gateway.FilePart, requiresAuth bool, out any) error
	Delete(ctx context.Context, path string, requiresAuth bool, out any) error
}

type Service struct {
	gw       Gateway
	encoder  imageenc.Encoder
	maxWidth int
}

func NewService(gw Gateway, encoder imageenc.Encoder, maxWidth int) *Service {
	if encoder == nil {
		encoder = imageenc.JPEG{}
	}
	if maxWidth <= 0 {
		maxWidth = imageenc.DefaultMaxWidth
	}
	return &Service{
		gw:       gw,
		encoder:  encoder,
		maxWidth: maxWidth,
	}
}

// FetchPosts returns one page of the published feed, newest first.
func (s *Service) FetchPosts(ctx context.Context, page int) (*ListResponse[Post], error) {
	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"status":   {"published"},
		"order_by": {"desc"},
	}

	var resp ListResponse[Post]
	if err := s.gw.Get(ctx, "/posts", query, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchMyPosts lists the caller's own posts. A user without posts gets a
// NoContent failure, not an empty list.
func (s *Service) FetchMyPosts(ctx context.Context) ([]Post, error) {
	var resp ListResponse[Post]
	if err := s.gw.Get(ctx, "/user/my-posts", nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (s *Service) CreatePost(ctx context.Context, req UploadRequest) (*Post, error) {
	fields := map[string]string{
		"title":        req.Title,
		"content":      req.Content,
		"is_published": strconv.FormatBool(req.Published),
	}

	var resp ItemResponse[Post]
	if err := s.gw.PostMultipart(ctx, "/posts", fields, s.imageParts(req.Images), true, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdatePost uses POST on the item path, as the API expects for updates.
func (s *Service) UpdatePost(ctx context.Context, id int, upd UpdateFields) (*Post, error) {
	var resp ItemResponse[Post]
	err := s.gw.PostMultipart(ctx, postPath(id), upd.form(), s.imageParts(upd.Images), true, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Service) DeletePost(ctx context.Context, id int) (*Post, error) {
	var resp ItemResponse[Post]
	if err := s.gw.Delete(ctx, postPath(id), true, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Service) SearchPosts(ctx context.Context, query string) ([]Post, error) {
	var resp ListResponse[Post]
	if err := s.gw.Get(ctx, "/search", searchQuery(query, "post"), true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]UserData, error) {
	var resp ListResponse[UserData]
	if err := s.gw.Get(ctx, "/search", searchQuery(query, "user"), true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (s *Service) imageParts(images []image.Image) []gateway.FilePart {
	if len(images) == 0 {
		return nil
	}

	payloads := imageenc.EncodeAll(s.encoder, images, s.maxWidth)
	parts := make([]gateway.FilePart, 0, len(payloads))
	for _, data := range payloads {
		parts = append(parts, gateway.FilePart{
			Field:    ImageField,
			Data:     data,
			MimeType: s.encoder.MimeType(),
			Ext:      s.encoder.Extension(),
		})
	}
	return parts
}

func (u UpdateFields) form() map[string]string {
	fields := make(map[string]string, 3)
	if u.Title != nil && *u.Title != "" {
		fields["title"] = *u.Title
	}
	if u.Content != nil && *u.Content != "" {
		fields["content"] = *u.Content
	}
	if u.Published != nil {
		fields["is_published"] = strconv.FormatBool(*u.Published)
	}
	return fields
}

func postPath(id int) string {
	return fmt.Sprintf("/posts/%d", id)
}

func searchQuery(query, kind string) url.Values {
	return url.Values{
		"query": {query},
		"type":  {kind},
	}
}
