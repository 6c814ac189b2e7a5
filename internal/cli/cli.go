// SPDX-License-Identifier: AGPL-3.0-only
package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fluffyriot/foodies/internal/blog"
	"github.com/fluffyriot/foodies/internal/feed"
	"github.com/fluffyriot/foodies/internal/gateway"
	"github.com/fluffyriot/foodies/internal/helpers"
	"github.com/fluffyriot/foodies/internal/session"
	_ "github.com/gen2brain/webp"
	"golang.org/x/term"
)

const (
	excerptLength  = 80
	logoutAttempts = 3
)

// Options carries the flag values a command may use.
type Options struct {
	Email   string
	Name    string
	Title   string
	Content string
	Publish string
	Images  []string
	ID      int
	Pages   int
	Query   string
	Type    string
}

type App struct {
	Out          io.Writer
	Engine       *feed.Engine
	Blog         *blog.Service
	Session      *session.Controller
	ReadPassword func() ([]byte, error)
	Location     *time.Location
}

func TerminalPassword() ([]byte, error) {
	return term.ReadPassword(int(syscall.Stdin))
}

func (a *App) Run(ctx context.Context, cmd string, opts Options) error {
	var err error
	switch cmd {
	case "feed":
		err = a.Feed(ctx, max(opts.Pages, 1))
	case "more":
		err = a.Feed(ctx, 0)
	case "login":
		err = a.Login(ctx, opts.Email)
	case "join":
		err = a.Join(ctx, opts.Name, opts.Email)
	case "logout":
		err = a.Logout(ctx)
	case "mine":
		err = a.Mine(ctx)
	case "post":
		err = a.Post(ctx, opts)
	case "edit":
		err = a.Edit(ctx, opts)
	case "delete":
		err = a.Delete(ctx, opts.ID)
	case "search":
		err = a.Search(ctx, opts.Query, opts.Type)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, gateway.ErrUnauthorized) {
		fmt.Fprintln(a.Out, "You are not logged in. Run: foodies -cmd login -email <email>")
	}
	return err
}

// Feed loads up to pages pages of the public feed, or every page when pages
// is 0. A failed page is retried once.
func (a *App) Feed(ctx context.Context, pages int) error {
	updates, cancel := a.Engine.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for st := range updates {
			fmt.Fprintf(a.Out, "Loaded page %d (%d posts)\n", st.Cursor, len(st.Posts))
		}
	}()

	err := a.loadPages(ctx, pages)
	cancel()
	wg.Wait()
	if err != nil {
		return err
	}

	a.printPosts(a.Engine.Snapshot().Posts)
	return nil
}

func (a *App) loadPages(ctx context.Context, pages int) error {
	if err := a.Engine.FetchFirstPage(ctx); err != nil {
		if err := a.Engine.RetryLastPage(ctx); err != nil {
			return fmt.Errorf("load feed: %w", err)
		}
	}

	for loaded := 1; a.Engine.HasNext() && (pages == 0 || loaded < pages); loaded++ {
		if err := a.Engine.FetchNextPage(ctx); err != nil {
			if err := a.Engine.RetryLastPage(ctx); err != nil {
				return fmt.Errorf("load page %d: %w", a.Engine.Snapshot().Cursor, err)
			}
		}
	}
	return nil
}

func (a *App) Login(ctx context.Context, email string) error {
	if email == "" {
		return errors.New("-email is required")
	}

	password, err := a.prompt(fmt.Sprintf("Password for %s: ", email))
	if err != nil {
		return err
	}

	user, err := a.Session.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(a.Out, "Logged in as %s.\n", displayName(user))
	return nil
}

func (a *App) Join(ctx context.Context, name, email string) error {
	if name == "" || email == "" {
		return errors.New("-name and -email are required")
	}

	password, err := a.prompt("Choose a password: ")
	if err != nil {
		return err
	}

	user, err := a.Session.Join(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	fmt.Fprintf(a.Out, "Welcome, %s.\n", displayName(user))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if _, err := a.Session.LogoutWithRetry(ctx, logoutAttempts); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(a.Out, "Logged out.")
	return nil
}

func (a *App) Mine(ctx context.Context) error {
	posts, err := a.Engine.FetchMyPosts(ctx)
	if errors.Is(err, gateway.ErrNoContent) {
		fmt.Fprintln(a.Out, "You have not posted anything yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("my posts: %w", err)
	}

	a.printPosts(posts)
	return nil
}

func (a *App) Post(ctx context.Context, opts Options) error {
	images, err := LoadImages(opts.Images)
	if err != nil {
		return err
	}

	published := true
	if opts.Publish != "" {
		if published, err = strconv.ParseBool(opts.Publish); err != nil {
			return fmt.Errorf("-publish: %w", err)
		}
	}

	post, err := a.Engine.CreatePost(ctx, blog.UploadRequest{
		Title:     opts.Title,
		Content:   opts.Content,
		Images:    images,
		Published: published,
	})
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}

	fmt.Fprintf(a.Out, "Created post #%d with %d image(s).\n", post.ID, len(post.Images))
	return nil
}

func (a *App) Edit(ctx context.Context, opts Options) error {
	if opts.ID <= 0 {
		return errors.New("-id is required")
	}

	images, err := LoadImages(opts.Images)
	if err != nil {
		return err
	}

	upd := blog.UpdateFields{Images: images}
	if opts.Title != "" {
		upd.Title = &opts.Title
	}
	if opts.Content != "" {
		upd.Content = &opts.Content
	}
	if opts.Publish != "" {
		published, err := strconv.ParseBool(opts.Publish)
		if err != nil {
			return fmt.Errorf("-publish: %w", err)
		}
		upd.Published = &published
	}

	post, err := a.Engine.UpdatePost(ctx, opts.ID, upd)
	if err != nil {
		return fmt.Errorf("update post %d: %w", opts.ID, err)
	}
	a.Engine.ReplacePost(*post)

	fmt.Fprintf(a.Out, "Updated post #%d.\n", post.ID)
	return nil
}

func (a *App) Delete(ctx context.Context, id int) error {
	if id <= 0 {
		return errors.New("-id is required")
	}

	post, err := a.Engine.DeletePost(ctx, id)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	a.Engine.RemovePost(post.ID)

	fmt.Fprintf(a.Out, "Deleted post #%d (%s).\n", post.ID, post.Title)
	return nil
}

func (a *App) Search(ctx context.Context, query, kind string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("-query is required")
	}

	switch kind {
	case "", "post":
		posts, err := a.Blog.SearchPosts(ctx, query)
		if err != nil {
			return fmt.Errorf("search posts: %w", err)
		}
		a.printPosts(posts)
	case "user":
		users, err := a.Blog.SearchUsers(ctx, query)
		if err != nil {
			return fmt.Errorf("search users: %w", err)
		}
		for _, u := range users {
			count := 0
			if u.PostCount != nil {
				count = *u.PostCount
			}
			fmt.Fprintf(a.Out, "%s <%s>, %d post(s)\n", u.Name, u.Email, count)
		}
		if len(users) == 0 {
			fmt.Fprintln(a.Out, "No users found.")
		}
	default:
		return fmt.Errorf("-type must be post or user, got %q", kind)
	}
	return nil
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.Out, label)
	password, err := a.ReadPassword()
	fmt.Fprintln(a.Out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}

func (a *App) printPosts(posts []blog.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(a.Out, "No posts.")
		return
	}

	for _, p := range posts {
		state := "published"
		if !p.IsPublished {
			state = "draft"
		}
		fmt.Fprintf(a.Out, "#%d %s [%s]\n", p.ID, p.Title, state)
		fmt.Fprintf(a.Out, "    %s\n", helpers.Excerpt(p.Content, excerptLength))
		fmt.Fprintf(a.Out, "    %s, %d image(s)\n", helpers.FormatAPITime(p.CreatedAt, a.Location), len(p.Images))
	}
}

// LoadImages decodes every path as a JPEG, PNG or WebP image.
func LoadImages(paths []string) ([]image.Image, error) {
	images := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open image: %w", err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode image %s: %w", path, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func displayName(u *blog.User) string {
	if u != nil && u.User != nil && u.User.Name != "" {
		return u.User.Name
	}
	return "you"
}
