// SPDX-License-Identifier: AGPL-3.0-only
package devserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const imageField = "upload_images[]"

type imageJSON struct {
	URL string `json:"url"`
}

type postJSON struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Images      []imageJSON `json:"images"`
	IsPublished bool        `json:"is_published"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

type metaJSON struct {
	CurrentPage int  `json:"current_page"`
	From        *int `json:"from"`
	LastPage    int  `json:"last_page"`
	PerPage     int  `json:"per_page"`
	To          *int `json:"to"`
	Total       int  `json:"total"`
}

func toPostJSON(c *gin.Context, r record) postJSON {
	images := make([]imageJSON, 0, len(r.Images))
	for _, name := range r.Images {
		images = append(images, imageJSON{URL: imageURL(c, name)})
	}
	return postJSON{
		ID:          r.ID,
		Title:       r.Title,
		Content:     r.Content,
		Images:      images,
		IsPublished: r.IsPublished,
		CreatedAt:   r.CreatedAt.UTC().Format(TimeLayout),
		UpdatedAt:   r.UpdatedAt.UTC().Format(TimeLayout),
	}
}

func imageURL(c *gin.Context, name string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/images/%s", scheme, c.Request.Host, name)
}

// paginate cuts one page out of records. Pages past the end are empty but
// still carry meta, so clients can tell they reached the last page.
func paginate(c *gin.Context, records []record, page, perPage int) ([]postJSON, metaJSON) {
	total := len(records)
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	meta := metaJSON{CurrentPage: page, LastPage: lastPage, PerPage: perPage, Total: total}
	data := []postJSON{}

	start := (page - 1) * perPage
	if start >= total {
		return data, meta
	}
	end := min(start+perPage, total)
	for _, r := range records[start:end] {
		data = append(data, toPostJSON(c, r))
	}

	from, to := start+1, end
	meta.From = &from
	meta.To = &to
	return data, meta
}

func (s *Server) listPostsHandler(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	asc := strings.EqualFold(c.Query("order_by"), "asc")

	var match func(*record) bool
	switch c.DefaultQuery("status", "published") {
	case "published":
		match = func(r *record) bool { return r.IsPublished }
	case "all":
		match = func(*record) bool { return true }
	default:
		validationError(c, "status", "The selected status is invalid.")
		return
	}

	data, meta := paginate(c, s.store.listRecords(match, asc), page, s.cfg.PerPage)
	c.JSON(http.StatusOK, gin.H{"data": data, "meta": meta, "message": "Posts retrieved"})
}

// myPostsHandler answers 204 when the user has not written anything yet.
func (s *Server) myPostsHandler(c *gin.Context) {
	userID := currentUserID(c)
	records := s.store.listRecords(func(r *record) bool { return r.OwnerID == userID }, false)
	if len(records) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	data := make([]postJSON, 0, len(records))
	for _, r := range records {
		data = append(data, toPostJSON(c, r))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "message": "Posts retrieved"})
}

func (s *Server) createPostHandler(c *gin.Context) {
	title := c.PostForm("title")
	content := c.PostForm("content")
	if title == "" {
		validationError(c, "title", "The title field is required.")
		return
	}
	if content == "" {
		validationError(c, "content", "The content field is required.")
		return
	}

	published, err := parseFormBool(c.PostForm("is_published"))
	if err != nil {
		validationError(c, "is_published", "The is published field must be true or false.")
		return
	}

	images, ok := s.saveUploads(c)
	if !ok {
		return
	}

	now := s.now()
	r := s.store.addRecord(record{
		OwnerID:     currentUserID(c),
		Title:       title,
		Content:     content,
		Images:      images,
		IsPublished: published,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	c.JSON(http.StatusCreated, gin.H{"data": toPostJSON(c, r), "message": "Post created"})
}

// updatePostHandler treats an absent or empty field as unchanged.
func (s *Server) updatePostHandler(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	var patch postPatch
	if v, ok := c.GetPostForm("title"); ok && v != "" {
		patch.Title = &v
	}
	if v, ok := c.GetPostForm("content"); ok && v != "" {
		patch.Content = &v
	}
	if v, ok := c.GetPostForm("is_published"); ok {
		published, err := parseFormBool(v)
		if err != nil {
			validationError(c, "is_published", "The is published field must be true or false.")
			return
		}
		patch.Published = &published
	}

	images, ok := s.saveUploads(c)
	if !ok {
		return
	}
	patch.Images = images

	r, err := s.store.updateRecord(id, currentUserID(c), patch, s.now())
	if err != nil {
		recordError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPostJSON(c, r), "message": "Post updated"})
}

func (s *Server) deletePostHandler(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	r, err := s.store.deleteRecord(id, currentUserID(c))
	if err != nil {
		recordError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPostJSON(c, r), "message": "Post deleted"})
}

func (s *Server) searchHandler(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		validationError(c, "query", "The query field is required.")
		return
	}

	switch c.DefaultQuery("type", "post") {
	case "post":
		records := s.store.searchRecords(query)
		data := make([]postJSON, 0, len(records))
		for _, r := range records {
			data = append(data, toPostJSON(c, r))
		}
		c.JSON(http.StatusOK, gin.H{"data": data, "message": "Search results"})
	case "user":
		accounts := s.store.searchAccounts(query)
		data := make([]userJSON, 0, len(accounts))
		for _, a := range accounts {
			data = append(data, s.toUserJSON(a))
		}
		c.JSON(http.StatusOK, gin.H{"data": data, "message": "Search results"})
	default:
		validationError(c, "type", "The selected type is invalid.")
	}
}

func (s *Server) imageHandler(c *gin.Context) {
	img, ok := s.store.image(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found."})
		return
	}
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

// saveUploads stores every file sent under the image field and returns their
// names. It writes the error response itself and reports false on failure.
func (s *Server) saveUploads(c *gin.Context) ([]string, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, true
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed multipart body."})
		return nil, false
	}

	headers := form.File[imageField]
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		img, err := readUpload(fh)
		if err != nil {
			validationError(c, imageField, err.Error())
			return nil, false
		}

		name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
		s.store.putImage(name, img)
		names = append(names, name)
	}
	return names, true
}

func readUpload(fh *multipart.FileHeader) (storedImage, error) {
	f, err := fh.Open()
	if err != nil {
		return storedImage{}, fmt.Errorf("The upload could not be read.")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return storedImage{}, fmt.Errorf("The upload could not be read.")
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return storedImage{}, fmt.Errorf("The upload must be an image.")
	}
	return storedImage{Data: data, ContentType: contentType}, nil
}

func postID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Post not found."})
		return 0, false
	}
	return id, true
}

func recordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Post not found."})
	case errors.Is(err, errForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "This action is unauthorized."})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
	}
}

func validationError(c *gin.Context, field, msg string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": msg,
		"errors":  gin.H{field: []string{msg}},
	})
}

func parseFormBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "", "0", "false", "off":
		return false, nil
	case "1", "true", "on":
		return true, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}
