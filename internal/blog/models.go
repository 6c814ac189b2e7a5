// SPDX-License-Identifier: AGPL-3.0-only
package blog

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
)

type Image struct {
	URL string `json:"url,omitempty"`
}

// Post is a server-owned record. Timestamps are kept as the server sent them.
type Post struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	Images      []Image `json:"images"`
	IsPublished bool    `json:"is_published"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// UnmarshalJSON rejects posts missing any of the keys the feed relies on, so a
// half-shaped record never reaches the accumulated list.
func (p *Post) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          *int    `json:"id"`
		Title       *string `json:"title"`
		Content     *string `json:"content"`
		Images      []Image `json:"images"`
		IsPublished *bool   `json:"is_published"`
		CreatedAt   *string `json:"created_at"`
		UpdatedAt   *string `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch {
	case raw.ID == nil:
		return missingKey("id")
	case raw.Title == nil:
		return missingKey("title")
	case raw.Content == nil:
		return missingKey("content")
	case raw.IsPublished == nil:
		return missingKey("is_published")
	case raw.CreatedAt == nil:
		return missingKey("created_at")
	case raw.UpdatedAt == nil:
		return missingKey("updated_at")
	}

	*p = Post{
		ID:          *raw.ID,
		Title:       *raw.Title,
		Content:     *raw.Content,
		Images:      raw.Images,
		IsPublished: *raw.IsPublished,
		CreatedAt:   *raw.CreatedAt,
		UpdatedAt:   *raw.UpdatedAt,
	}
	return nil
}

func missingKey(key string) error {
	return fmt.Errorf("post: missing required key %q", key)
}

// Meta is the pagination block of list responses. Every field is optional.
type Meta struct {
	CurrentPage *int `json:"current_page,omitempty"`
	From        *int `json:"from,omitempty"`
	LastPage    *int `json:"last_page,omitempty"`
	PerPage     *int `json:"per_page,omitempty"`
	To          *int `json:"to,omitempty"`
	Total       *int `json:"total,omitempty"`
}

// HasNext is false when either page number is unknown.
func (m *Meta) HasNext() bool {
	if m == nil || m.CurrentPage == nil || m.LastPage == nil {
		return false
	}
	return *m.CurrentPage < *m.LastPage
}

type ListResponse[T any] struct {
	Data    []T    `json:"data"`
	Meta    *Meta  `json:"meta,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r *ListResponse[T]) UnmarshalJSON(b []byte) error {
	var raw struct {
		Data    *[]T   `json:"data"`
		Meta    *Meta  `json:"meta"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Data == nil {
		return errors.New("list response: missing data")
	}

	*r = ListResponse[T]{Data: *raw.Data, Meta: raw.Meta, Message: raw.Message}
	return nil
}

type ItemResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

func (r *ItemResponse[T]) UnmarshalJSON(b []byte) error {
	var raw struct {
		Data    *T     `json:"data"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Data == nil {
		return errors.New("item response: missing data")
	}

	*r = ItemResponse[T]{Data: *raw.Data, Message: raw.Message}
	return nil
}

type User struct {
	User  *UserData `json:"user,omitempty"`
	Token *Token    `json:"token,omitempty"`
}

type Token struct {
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    *int   `json:"expires_in,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type UserData struct {
	ID        *int   `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	PostCount *int   `json:"post_count,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// UploadRequest is consumed by exactly one create call.
type UploadRequest struct {
	Title     string
	Content   string
	Images    []image.Image
	Published bool
}

// UpdateFields describes a partial update. A nil or empty Title or Content is
// left out of the request: an empty string never clears a field on the
// server. Published is sent whenever it is non-nil, including false.
type UpdateFields struct {
	Title     *string
	Content   *string
	Images    []image.Image
	Published *bool
}
