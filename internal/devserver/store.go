// SPDX-License-Identifier: AGPL-3.0-only
package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fluffyriot/foodies/internal/helpers"
)

// TimeLayout is the timestamp format the API sends.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

var (
	errNotFound   = errors.New("not found")
	errForbidden  = errors.New("forbidden")
	errEmailTaken = errors.New("email already registered")
)

type account struct {
	ID           int
	Name         string
	Email        string
	PasswordHash string
	Avatar       string
}

type record struct {
	ID          int
	OwnerID     int
	Title       string
	Content     string
	Images      []string
	IsPublished bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type postPatch struct {
	Title     *string
	Content   *string
	Published *bool
	Images    []string
}

// memStore holds everything the dev server knows. Records are copied in and
// out so handlers never share memory with the store.
type memStore struct {
	mu sync.RWMutex

	accounts   map[int]*account
	byEmail    map[string]int
	records    map[int]*record
	images     map[string]storedImage
	refresh    map[string]int
	revoked    map[string]time.Time
	nextUserID int
	nextPostID int
}

type storedImage struct {
	Data        []byte
	ContentType string
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[int]*account),
		byEmail:    make(map[string]int),
		records:    make(map[int]*record),
		images:     make(map[string]storedImage),
		refresh:    make(map[string]int),
		revoked:    make(map[string]time.Time),
		nextUserID: 1,
		nextPostID: 1,
	}
}

func (s *memStore) addAccount(name, email, hash string) (account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := s.byEmail[key]; ok {
		return account{}, errEmailTaken
	}

	a := &account{ID: s.nextUserID, Name: name, Email: email, PasswordHash: hash}
	s.nextUserID++
	s.accounts[a.ID] = a
	s.byEmail[key] = a.ID
	return *a, nil
}

func (s *memStore) accountByEmail(email string) (account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return account{}, errNotFound
	}
	return *s.accounts[id], nil
}

func (s *memStore) account(id int) (account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return account{}, errNotFound
	}
	return *a, nil
}

func (s *memStore) postCount(ownerID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n
}

func (s *memStore) addRecord(r record) record {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextPostID
	s.nextPostID++
	r.Images = append([]string(nil), r.Images...)
	s.records[r.ID] = &r
	return copyRecord(&r)
}

// updateRecord applies p when ownerID owns the record. Uploaded images
// replace the previous set; no upload keeps it.
func (s *memStore) updateRecord(id, ownerID int, p postPatch, now time.Time) (record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return record{}, errNotFound
	}
	if r.OwnerID != ownerID {
		return record{}, errForbidden
	}

	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.Published != nil {
		r.IsPublished = *p.Published
	}
	if len(p.Images) > 0 {
		r.Images = append([]string(nil), p.Images...)
	}
	r.UpdatedAt = now
	return copyRecord(r), nil
}

func (s *memStore) deleteRecord(id, ownerID int) (record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return record{}, errNotFound
	}
	if r.OwnerID != ownerID {
		return record{}, errForbidden
	}
	delete(s.records, id)
	return copyRecord(r), nil
}

// listRecords returns matching records ordered by creation, newest first
// unless asc is set. Ties on time fall back to ID.
func (s *memStore) listRecords(match func(*record) bool, asc bool) []record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record, 0, len(s.records))
	for _, r := range s.records {
		if match(r) {
			out = append(out, copyRecord(r))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if asc {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if asc {
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *memStore) searchRecords(query string) []record {
	q := strings.ToLower(query)
	return s.listRecords(func(r *record) bool {
		if !r.IsPublished {
			return false
		}
		text := strings.ToLower(r.Title + " " + helpers.StripHTMLToText(r.Content))
		return strings.Contains(text, q)
	}, false)
}

func (s *memStore) searchAccounts(query string) []account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	out := []account{}
	for _, a := range s.accounts {
		if strings.Contains(strings.ToLower(a.Name), q) || strings.Contains(strings.ToLower(a.Email), q) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) putImage(name string, img storedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = img
}

func (s *memStore) image(name string) (storedImage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[name]
	return img, ok
}

func (s *memStore) putRefresh(token string, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = userID
}

// takeRefresh consumes a refresh token. Each one works once.
func (s *memStore) takeRefresh(token string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.refresh[token]
	if ok {
		delete(s.refresh, token)
	}
	return userID, ok
}

// revoke marks an access token id as logged out and drops every refresh
// token of the user.
func (s *memStore) revoke(jti string, userID int, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[jti] = until
	for token, owner := range s.refresh {
		if owner == userID {
			delete(s.refresh, token)
		}
	}
}

func (s *memStore) isRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[jti]
	return ok
}

// Revoked token ids only matter until the token would have expired anyway.
func (s *memStore) pruneRevoked(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, until := range s.revoked {
		if now.After(until) {
			delete(s.revoked, jti)
		}
	}
}

func copyRecord(r *record) record {
	c := *r
	c.Images = append([]string(nil), r.Images...)
	return c
}
