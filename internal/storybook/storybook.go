// Package storybook discovers the story catalog served by a running
// Storybook instance and resolves the per-story iframe URL.
package storybook

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// Story is one catalog entry.
type Story struct {
	ID    string
	Name  string
	Title string
	Tags  []string
}

// skipTag is the tag value that excludes a story from capture.
const skipTag = "snapvrt-skip"

// IsSkipped reports whether a story is tagged snapvrt-skip.
func (s Story) IsSkipped() bool {
	for _, t := range s.Tags {
		if t == skipTag {
			return true
		}
	}
	return false
}

type indexResponse struct {
	V       int                    `json:"v"`
	Entries map[string]indexEntry `json:"entries"`
}

type indexEntry struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Name  string   `json:"name"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// Client talks to one Storybook base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for baseURL. When local is false, a
// localhost/127.0.0.1 base URL is rewritten to the host's LAN IP so a
// remote (e.g. containerized) Chrome can reach it.
func New(baseURL string, local bool) (*Client, error) {
	url := strings.TrimRight(baseURL, "/")
	if !local {
		rewritten, err := rewriteLocalhost(url)
		if err != nil {
			return nil, err
		}
		url = rewritten
	}
	return &Client{baseURL: url, http: http.DefaultClient}, nil
}

// URL returns the (possibly rewritten) base URL.
func (c *Client) URL() string { return c.baseURL }

// StoryURL builds the iframe URL Chrome should navigate to for a story.
func (c *Client) StoryURL(s Story) string {
	return fmt.Sprintf("%s/iframe.html?id=%s", c.baseURL, s.ID)
}

// Discover fetches index.json and returns all story-type entries,
// sorted by id for stable ordering across runs.
func (c *Client) Discover(ctx context.Context) ([]Story, error) {
	indexURL := c.baseURL + "/index.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", indexURL, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", indexURL, err)
	}
	defer resp.Body.Close()

	var idx indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&idx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", indexURL, err)
	}

	stories := make([]Story, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Type != "story" {
			continue
		}
		stories = append(stories, Story{ID: e.ID, Name: e.Name, Title: e.Title, Tags: e.Tags})
	}
	sort.Slice(stories, func(i, j int) bool { return stories[i].ID < stories[j].ID })
	return stories, nil
}

// isLocalhostURL reports whether url's host component is localhost or
// 127.0.0.1.
func isLocalhostURL(url string) bool {
	for _, host := range []string{"localhost", "127.0.0.1"} {
		rest := url
		if idx := strings.Index(url, "://"); idx != -1 {
			rest = url[idx+3:]
		}
		authority := rest
		if idx := strings.Index(rest, "/"); idx != -1 {
			authority = rest[:idx]
		}
		hostname := authority
		if idx := strings.Index(authority, ":"); idx != -1 {
			hostname = authority[:idx]
		}
		if hostname == host {
			return true
		}
	}
	return false
}

// rewriteLocalhost replaces a localhost/127.0.0.1 host with the
// machine's LAN IP, so a remote Chrome (e.g. in a container) can reach
// a Storybook dev server bound to the local host only. Fails fast if
// the LAN IP cannot be determined, since a remote Chrome could not
// reach localhost anyway.
func rewriteLocalhost(url string) (string, error) {
	if !isLocalhostURL(url) {
		return url, nil
	}
	ip, err := localLANIP()
	if err != nil {
		return "", fmt.Errorf("cannot detect host IP for remote chrome to reach %q: %w", url, err)
	}
	url = strings.ReplaceAll(url, "://localhost", "://"+ip)
	url = strings.ReplaceAll(url, "://127.0.0.1", "://"+ip)
	return url, nil
}

// localLANIP finds the host's LAN address via the UDP-connect trick: no
// packets are sent, the kernel just resolves which local interface it
// would route 8.8.8.8 through.
func localLANIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type")
	}
	if addr.IP.IsLoopback() {
		return "", fmt.Errorf("resolved loopback address")
	}
	return addr.IP.String(), nil
}
