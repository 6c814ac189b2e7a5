// SPDX-License-Identifier: AGPL-3.0-only

// Package feed keeps the accumulated post feed in step with the paginated
// remote API and broadcasts a snapshot after every change.
//
// Callers must not overlap FetchFirstPage, FetchNextPage and RetryLastPage:
// the engine neither queues nor rejects concurrent fetches, and overlapping
// them breaks the cursor and ordering guarantees. CreatePost, UpdatePost and
// DeletePost do not touch the cursor and may run alongside a fetch.
package feed

import (
	"context"
	"log"
	"sync"

	"github.com/fluffyriot/foodies/internal/blog"
)

// API is the remote surface the engine drives. *blog.Service satisfies it.
type API interface {
	FetchPosts(ctx context.Context, page int) (*blog.ListResponse[blog.Post], error)
	FetchMyPosts(ctx context.Context) ([]blog.Post, error)
	CreatePost(ctx context.Context, req blog.UploadRequest) (*blog.Post, error)
	UpdatePost(ctx context.Context, id int, upd blog.UpdateFields) (*blog.Post, error)
	DeletePost(ctx context.Context, id int) (*blog.Post, error)
}

type Status int

const (
	Idle Status = iota
	FetchingFirstPage
	FetchingNextPage
	Submitting
)

func (s Status) String() string {
	switch s {
	case FetchingFirstPage:
		return "fetching first page"
	case FetchingNextPage:
		return "fetching next page"
	case Submitting:
		return "submitting"
	default:
		return "idle"
	}
}

// State is an immutable copy of the engine's feed.
type State struct {
	Posts  []blog.Post
	Cursor int
	Meta   *blog.Meta
	Status Status
}

func (s State) HasNext() bool {
	return s.Meta.HasNext()
}

const DefaultSubscriberBuffer = 16

type Engine struct {
	api API

	mu      sync.Mutex
	posts   []blog.Post
	cursor  int
	meta    *blog.Meta
	status  Status
	subs    map[int]chan State
	nextSub int
	buffer  int
}

func NewEngine(api API) *Engine {
	return &Engine{
		api:    api,
		cursor: 1,
		subs:   make(map[int]chan State),
		buffer: DefaultSubscriberBuffer,
	}
}

// FetchFirstPage resets the cursor to 1 and replaces the accumulated list
// with page 1. On failure the list and meta are left as they were.
func (e *Engine) FetchFirstPage(ctx context.Context) error {
	e.mu.Lock()
	e.cursor = 1
	e.status = FetchingFirstPage
	e.mu.Unlock()

	resp, err := e.api.FetchPosts(ctx, 1)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settle(FetchingFirstPage)

	if err != nil {
		log.Printf("Feed: first page failed: %v", err)
		return err
	}

	e.posts = append([]blog.Post(nil), resp.Data...)
	e.meta = resp.Meta
	e.broadcast()
	return nil
}

// FetchNextPage advances the cursor before requesting, then appends the page.
// The cursor is not rolled back on failure: calling FetchNextPage again asks
// for the page after the failed one. Use RetryLastPage to re-request it.
func (e *Engine) FetchNextPage(ctx context.Context) error {
	e.mu.Lock()
	e.cursor++
	page := e.cursor
	e.status = FetchingNextPage
	e.mu.Unlock()

	return e.fetchPage(ctx, page, FetchingNextPage)
}

// RetryLastPage requests the current cursor again without advancing it. On
// page 1 the result replaces the list, on any later page it is appended.
func (e *Engine) RetryLastPage(ctx context.Context) error {
	e.mu.Lock()
	page := e.cursor
	status := FetchingNextPage
	if page == 1 {
		status = FetchingFirstPage
	}
	e.status = status
	e.mu.Unlock()

	return e.fetchPage(ctx, page, status)
}

func (e *Engine) fetchPage(ctx context.Context, page int, status Status) error {
	resp, err := e.api.FetchPosts(ctx, page)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settle(status)

	if err != nil {
		log.Printf("Feed: page %d failed: %v", page, err)
		return err
	}

	if page == 1 {
		e.posts = append([]blog.Post(nil), resp.Data...)
	} else {
		e.posts = append(e.posts, resp.Data...)
	}
	e.meta = resp.Meta
	e.broadcast()
	return nil
}

// CreatePost uploads req and puts the echoed post at the front of the list.
func (e *Engine) CreatePost(ctx context.Context, req blog.UploadRequest) (*blog.Post, error) {
	e.begin(Submitting)
	post, err := e.api.CreatePost(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settle(Submitting)

	if err != nil {
		log.Printf("Feed: create post failed: %v", err)
		return nil, err
	}

	posts := make([]blog.Post, 0, len(e.posts)+1)
	posts = append(posts, *post)
	e.posts = append(posts, e.posts...)
	e.broadcast()
	return post, nil
}

// UpdatePost returns the updated post without merging it into the feed; use
// ReplacePost to reconcile.
func (e *Engine) UpdatePost(ctx context.Context, id int, upd blog.UpdateFields) (*blog.Post, error) {
	e.begin(Submitting)
	post, err := e.api.UpdatePost(ctx, id, upd)
	e.end(Submitting)

	if err != nil {
		log.Printf("Feed: update post %d failed: %v", id, err)
		return nil, err
	}
	return post, nil
}

// DeletePost returns the echoed post without removing it from the feed; use
// RemovePost to reconcile.
func (e *Engine) DeletePost(ctx context.Context, id int) (*blog.Post, error) {
	e.begin(Submitting)
	post, err := e.api.DeletePost(ctx, id)
	e.end(Submitting)

	if err != nil {
		log.Printf("Feed: delete post %d failed: %v", id, err)
		return nil, err
	}
	return post, nil
}

// FetchMyPosts is independent of the feed and never changes it.
func (e *Engine) FetchMyPosts(ctx context.Context) ([]blog.Post, error) {
	return e.api.FetchMyPosts(ctx)
}

// ReplacePost swaps in post for the entry with the same ID.
func (e *Engine) ReplacePost(post blog.Post) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.posts {
		if e.posts[i].ID == post.ID {
			e.posts[i] = post
			e.broadcast()
			return true
		}
	}
	return false
}

func (e *Engine) RemovePost(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.posts {
		if e.posts[i].ID == id {
			e.posts = append(e.posts[:i:i], e.posts[i+1:]...)
			e.broadcast()
			return true
		}
	}
	return false
}

func (e *Engine) PostAt(i int) (blog.Post, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.posts) {
		return blog.Post{}, false
	}
	return e.posts[i], true
}

func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) HasNext() bool {
	return e.Snapshot().HasNext()
}

// Subscribe returns a channel that receives a snapshot after every change.
// A subscriber that falls more than its buffer behind loses the oldest
// pending snapshots, never the newest. cancel closes the channel and may be
// called more than once.
func (e *Engine) Subscribe() (<-chan State, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan State, e.buffer)
	e.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (e *Engine) begin(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) end(s Status) {
	e.mu.Lock()
	e.settle(s)
	e.mu.Unlock()
}

// settle must be called with e.mu held. It only clears the status it set, so
// a fetch finishing does not hide a submit still in flight, and vice versa.
func (e *Engine) settle(s Status) {
	if e.status == s {
		e.status = Idle
	}
}

// snapshot must be called with e.mu held.
func (e *Engine) snapshot() State {
	st := State{
		Posts:  append([]blog.Post(nil), e.posts...),
		Cursor: e.cursor,
		Status: e.status,
	}
	if e.meta != nil {
		meta := *e.meta
		st.Meta = &meta
	}
	return st
}

// broadcast must be called with e.mu held. Sends never block.
func (e *Engine) broadcast() {
	st := e.snapshot()
	for _, ch := range e.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}
