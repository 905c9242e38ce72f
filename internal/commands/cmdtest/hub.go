// Package cmdtest provides a fake hosting provider and an isolated command
// environment for CLI tests.
package cmdtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/thomas-vilte/materelease/internal/vcs/github"
	"golang.org/x/oauth2"
)

const (
	ClientID = "client-123"
	Token    = "gho_test"
	Login    = "octocat"
)

type Release struct {
	ID         int64
	Tag        string
	Name       string
	Body       string
	Target     string
	Prerelease bool
	Assets     map[string][]byte
}

// Hub is an in-memory stand-in for the GitHub REST API and its OAuth device
// endpoints. Every repository shares the same tags and releases.
type Hub struct {
	*httptest.Server

	mu          sync.Mutex
	nextID      int64
	Tags        []string
	Branches    []string
	Releases    []*Release
	Files       map[string]string
	Repos       map[string]bool // name -> private
	DeletedRefs []string
	// FailUpload makes every asset upload answer 500.
	FailUpload bool
	// FailDeleteRef lists tags whose deletion answers 500.
	FailDeleteRef map[string]bool
}

func NewHub(t *testing.T) *Hub {
	t.Helper()
	h := &Hub{
		nextID:        100,
		Branches:      []string{"main"},
		Files:         map[string]string{},
		Repos:         map[string]bool{},
		FailDeleteRef: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/device/code", h.deviceCode)
	mux.HandleFunc("POST /login/oauth/access_token", h.accessToken)
	mux.HandleFunc("GET /api/v3/user", h.user)
	mux.HandleFunc("GET /api/v3/user/repos", h.listRepos)
	mux.HandleFunc("POST /api/v3/user/repos", h.createRepo)
	mux.HandleFunc("PATCH /api/v3/repos/{owner}/{repo}", h.editRepo)
	mux.HandleFunc("GET /api/v3/repos/{owner}/{repo}/branches", h.listBranches)
	mux.HandleFunc("GET /api/v3/repos/{owner}/{repo}/tags", h.listTags)
	mux.HandleFunc("DELETE /api/v3/repos/{owner}/{repo}/git/refs/tags/{tag}", h.deleteRef)
	mux.HandleFunc("GET /api/v3/repos/{owner}/{repo}/releases", h.listReleases)
	mux.HandleFunc("POST /api/v3/repos/{owner}/{repo}/releases", h.createRelease)
	mux.HandleFunc("DELETE /api/v3/repos/{owner}/{repo}/releases/{id}", h.deleteRelease)
	mux.HandleFunc("GET /api/v3/repos/{owner}/{repo}/contents/{path...}", h.contents)
	mux.HandleFunc("POST /uploads/releases/{id}/assets", h.upload)

	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Close)
	return h
}

func (h *Hub) DeviceFlow() *github.DeviceFlow {
	return github.NewDeviceFlowWithEndpoint(ClientID, oauth2.Endpoint{
		DeviceAuthURL: h.URL + "/login/device/code",
		TokenURL:      h.URL + "/login/oauth/access_token",
		AuthStyle:     oauth2.AuthStyleInParams,
	})
}

func (h *Hub) ClientFactory() github.ClientFactory {
	return github.DefaultClientFactory(h.URL + "/")
}

// Update runs fn with the hub's state locked. Tests set up and inspect
// state through it while requests may be in flight.
func (h *Hub) Update(fn func(h *Hub)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

// Private reports the visibility of a repository created on the hub.
func (h *Hub) Private(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Repos[name]
}

// TagNames returns a copy of the hosted tags.
func (h *Hub) TagNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Tags...)
}

// Release returns a copy of the release for tag, or nil.
func (h *Hub) Release(tag string) *Release {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.Releases {
		if r.Tag == tag {
			cp := *r
			cp.Assets = make(map[string][]byte, len(r.Assets))
			for name, data := range r.Assets {
				cp.Assets[name] = data
			}
			return &cp
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// firstPage serves items on page 1 and nothing afterwards.
func firstPage(r *http.Request) bool {
	p := r.URL.Query().Get("page")
	return p == "" || p == "1"
}

func (h *Hub) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return false
	}
	return true
}

func (h *Hub) deviceCode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":      "dev-code",
		"user_code":        "ABCD-1234",
		"verification_uri": "https://github.com/login/device",
		"expires_in":       60,
		"interval":         1,
	})
}

func (h *Hub) accessToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": Token,
		"token_type":   "bearer",
		"scope":        "repo",
	})
}

func (h *Hub) user(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"login": Login, "name": "Octo Cat", "email": "octo@example.com"})
}

func (h *Hub) repoJSON(name string, private bool) map[string]any {
	return map[string]any{
		"name":           name,
		"full_name":      Login + "/" + name,
		"private":        private,
		"default_branch": "main",
		"owner":          map[string]any{"login": Login},
		"clone_url":      h.URL + "/" + Login + "/" + name + ".git",
		"html_url":       h.URL + "/" + Login + "/" + name,
	}
}

func (h *Hub) listRepos(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []map[string]any{}
	if firstPage(r) {
		names := make([]string, 0, len(h.Repos))
		for name := range h.Repos {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, h.repoJSON(name, h.Repos[name]))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Hub) createRepo(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	var body struct {
		Name    string `json:"name"`
		Private bool   `json:"private"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.Repos[body.Name]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Repository creation failed.",
			"errors":  []map[string]string{{"resource": "Repository", "code": "already_exists", "field": "name"}},
		})
		return
	}
	h.Repos[body.Name] = body.Private
	writeJSON(w, http.StatusCreated, h.repoJSON(body.Name, body.Private))
}

func (h *Hub) editRepo(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	var body struct {
		Private bool `json:"private"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	name := r.PathValue("repo")
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Repos[name]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	h.Repos[name] = body.Private
	writeJSON(w, http.StatusOK, h.repoJSON(name, body.Private))
}

func (h *Hub) listBranches(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []map[string]any{}
	if firstPage(r) {
		for _, b := range h.Branches {
			out = append(out, map[string]any{"name": b, "protected": b == "main"})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Hub) listTags(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []map[string]any{}
	if firstPage(r) {
		for _, tag := range h.Tags {
			out = append(out, map[string]any{"name": tag, "commit": map[string]string{"sha": "sha-" + tag}})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Hub) deleteRef(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	tag := r.PathValue("tag")
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailDeleteRef[tag] {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
		return
	}
	kept := h.Tags[:0]
	for _, t := range h.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	h.Tags = kept
	h.DeletedRefs = append(h.DeletedRefs, tag)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) releaseJSON(rel *Release) map[string]any {
	return map[string]any{
		"id":         rel.ID,
		"tag_name":   rel.Tag,
		"name":       rel.Name,
		"body":       rel.Body,
		"prerelease": rel.Prerelease,
		"html_url":   fmt.Sprintf("%s/%s/releases/tag/%s", h.URL, Login, rel.Tag),
		"upload_url": fmt.Sprintf("%s/uploads/releases/%d/assets{?name,label}", h.URL, rel.ID),
	}
}

func (h *Hub) listReleases(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []map[string]any{}
	if firstPage(r) {
		for _, rel := range h.Releases {
			out = append(out, h.releaseJSON(rel))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Hub) createRelease(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	var body struct {
		TagName         string `json:"tag_name"`
		Name            string `json:"name"`
		Body            string `json:"body"`
		TargetCommitish string `json:"target_commitish"`
		Prerelease      bool   `json:"prerelease"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rel := range h.Releases {
		if rel.Tag == body.TagName {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "Validation Failed",
				"errors":  []map[string]string{{"resource": "Release", "code": "already_exists", "field": "tag_name"}},
			})
			return
		}
	}
	h.nextID++
	rel := &Release{
		ID:         h.nextID,
		Tag:        body.TagName,
		Name:       body.Name,
		Body:       body.Body,
		Target:     body.TargetCommitish,
		Prerelease: body.Prerelease,
		Assets:     map[string][]byte{},
	}
	h.Releases = append(h.Releases, rel)
	h.Tags = append(h.Tags, body.TagName)
	writeJSON(w, http.StatusCreated, h.releaseJSON(rel))
}

func (h *Hub) deleteRelease(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, rel := range h.Releases {
		if rel.ID == id {
			h.Releases = append(h.Releases[:i], h.Releases[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func (h *Hub) contents(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	path := r.PathValue("path")
	h.mu.Lock()
	content, ok := h.Files[path]
	h.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":     "file",
		"name":     path,
		"path":     path,
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
	})
}

func (h *Hub) upload(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	name := r.URL.Query().Get("name")
	data, _ := io.ReadAll(r.Body)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailUpload {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "upload failed"})
		return
	}
	for _, rel := range h.Releases {
		if rel.ID == id {
			rel.Assets[name] = data
			writeJSON(w, http.StatusCreated, map[string]any{"id": 1, "name": name, "size": len(data)})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}
