package blog

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/url"
	"testing"

	"github.com/fluffyriot/foodies/internal/gateway"
	"github.com/fluffyriot/foodies/internal/imageenc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	method       string
	path         string
	query        url.Values
	fields       map[string]string
	files        []gateway.FilePart
	requiresAuth bool
}

type recordingGateway struct {
	calls []recordedCall
	body  string
	err   error
}

func (g *recordingGateway) finish(call recordedCall, out any) error {
	g.calls = append(g.calls, call)
	if g.err != nil {
		return g.err
	}
	if err := json.Unmarshal([]byte(g.body), out); err != nil {
		return &gateway.Error{Kind: gateway.KindDecoding, Err: err}
	}
	return nil
}

func (g *recordingGateway) Get(ctx context.Context, path string, query url.Values, requiresAuth bool, out any) error {
	return g.finish(recordedCall{method: "GET", path: path, query: query, requiresAuth: requiresAuth}, out)
}

func (g *recordingGateway) PostMultipart(ctx context.Context, path string, fields map[string]string, files []gateway.FilePart, requiresAuth bool, out any) error {
	return g.finish(recordedCall{method: "POST", path: path, fields: fields, files: files, requiresAuth: requiresAuth}, out)
}

func (g *recordingGateway) Delete(ctx context.Context, path string, requiresAuth bool, out any) error {
	return g.finish(recordedCall{method: "DELETE", path: path, requiresAuth: requiresAuth}, out)
}

const onePost = `{"data":{"id":5,"title":"Bibimbap","content":"hot stone","images":[{"url":"https://cdn.test/1.jpg"}],"is_published":true,"created_at":"2023-02-22T10:00:00.000000Z","updated_at":"2023-02-22T10:00:00.000000Z"},"message":"ok"}`

func square(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < size; i++ {
		img.Set(i, i, color.White)
	}
	return img
}

func TestFetchPostsQuery(t *testing.T) {
	gw := &recordingGateway{body: `{"data":[],"meta":{"current_page":3,"last_page":3}}`}
	svc := NewService(gw, nil, 0)

	resp, err := svc.FetchPosts(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, gw.calls, 1)
	call := gw.calls[0]
	assert.Equal(t, "/posts", call.path)
	assert.False(t, call.requiresAuth)
	assert.Equal(t, "3", call.query.Get("page"))
	assert.Equal(t, "published", call.query.Get("status"))
	assert.Equal(t, "desc", call.query.Get("order_by"))
	assert.Empty(t, resp.Data)
	assert.False(t, resp.Meta.HasNext())
}

func TestCreatePostSkipsImagesThatFailToEncode(t *testing.T) {
	gw := &recordingGateway{body: onePost}
	svc := NewService(gw, imageenc.JPEG{}, 64)

	post, err := svc.CreatePost(context.Background(), UploadRequest{
		Title:     "Bibimbap",
		Content:   "hot stone",
		Images:    []image.Image{square(32), nil, square(128)},
		Published: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, post.ID)

	require.Len(t, gw.calls, 1)
	call := gw.calls[0]
	assert.Equal(t, "/posts", call.path)
	assert.True(t, call.requiresAuth)
	assert.Equal(t, map[string]string{
		"title":        "Bibimbap",
		"content":      "hot stone",
		"is_published": "true",
	}, call.fields)

	require.Len(t, call.files, 2)
	for _, f := range call.files {
		assert.Equal(t, ImageField, f.Field)
		assert.Equal(t, "image/jpeg", f.MimeType)
		assert.Equal(t, ".jpg", f.Ext)
		assert.NotEmpty(t, f.Data)
	}
}

func TestUpdatePostOmitsEmptyFields(t *testing.T) {
	empty := ""
	content := "now with more kimchi"
	no := false

	tests := []struct {
		name string
		upd  UpdateFields
		want map[string]string
	}{
		{
			name: "empty title is omitted",
			upd:  UpdateFields{Title: &empty, Content: &content},
			want: map[string]string{"content": content},
		},
		{
			name: "explicit false is sent",
			upd:  UpdateFields{Title: &empty, Content: &content, Published: &no},
			want: map[string]string{"content": content, "is_published": "false"},
		},
		{
			name: "nothing supplied",
			upd:  UpdateFields{},
			want: map[string]string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := &recordingGateway{body: onePost}
			svc := NewService(gw, nil, 0)

			_, err := svc.UpdatePost(context.Background(), 42, tc.upd)
			require.NoError(t, err)

			require.Len(t, gw.calls, 1)
			assert.Equal(t, "POST", gw.calls[0].method)
			assert.Equal(t, "/posts/42", gw.calls[0].path)
			assert.True(t, gw.calls[0].requiresAuth)
			assert.Equal(t, tc.want, gw.calls[0].fields)
			assert.Empty(t, gw.calls[0].files)
		})
	}
}

func TestDeletePost(t *testing.T) {
	gw := &recordingGateway{body: onePost}
	svc := NewService(gw, nil, 0)

	post, err := svc.DeletePost(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Bibimbap", post.Title)
	assert.Equal(t, recordedCall{method: "DELETE", path: "/posts/5", requiresAuth: true}, gw.calls[0])
}

func TestSearch(t *testing.T) {
	gw := &recordingGateway{body: `{"data":[{"id":1,"name":"Victor","email":"v@test.dev","post_count":2}]}`}
	svc := NewService(gw, nil, 0)

	users, err := svc.SearchUsers(context.Background(), "vic")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Victor", users[0].Name)
	assert.Equal(t, 2, *users[0].PostCount)

	call := gw.calls[0]
	assert.Equal(t, "/search", call.path)
	assert.Equal(t, "vic", call.query.Get("query"))
	assert.Equal(t, "user", call.query.Get("type"))
	assert.True(t, call.requiresAuth)
}

func TestErrorsPassThroughUnchanged(t *testing.T) {
	want := &gateway.Error{Kind: gateway.KindNoContent, StatusCode: 204}
	gw := &recordingGateway{err: want}
	svc := NewService(gw, nil, 0)

	_, err := svc.FetchMyPosts(context.Background())
	assert.Same(t, want, err)
}

func TestDecodingRequiresPostShape(t *testing.T) {
	tests := map[string]string{
		"missing id":           `{"data":[{"title":"a","content":"b","is_published":true,"created_at":"x","updated_at":"y"}]}`,
		"missing is_published": `{"data":[{"id":1,"title":"a","content":"b","created_at":"x","updated_at":"y"}]}`,
		"wrong id type":        `{"data":[{"id":"1","title":"a","content":"b","is_published":true,"created_at":"x","updated_at":"y"}]}`,
		"null data":            `{"data":null}`,
		"no data":              `{"message":"hi"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			var resp ListResponse[Post]
			assert.Error(t, json.Unmarshal([]byte(body), &resp))
		})
	}

	t.Run("images are optional", func(t *testing.T) {
		var resp ListResponse[Post]
		body := `{"data":[{"id":1,"title":"a","content":"b","is_published":false,"created_at":"x","updated_at":"y"}],"meta":{"current_page":1,"last_page":2}}`
		require.NoError(t, json.Unmarshal([]byte(body), &resp))
		require.Len(t, resp.Data, 1)
		assert.Nil(t, resp.Data[0].Images)
		assert.True(t, resp.Meta.HasNext())
	})
}

func TestMetaHasNext(t *testing.T) {
	one, two := 1, 2
	var nilMeta *Meta

	assert.True(t, (&Meta{CurrentPage: &one, LastPage: &two}).HasNext())
	assert.False(t, (&Meta{CurrentPage: &two, LastPage: &two}).HasNext())
	assert.False(t, (&Meta{CurrentPage: &one}).HasNext())
	assert.False(t, (&Meta{LastPage: &two}).HasNext())
	assert.False(t, nilMeta.HasNext())
}
