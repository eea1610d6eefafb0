package enumerator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/utils"
	"github.com/raysh454/patternshield/internal/webclient"
	"golang.org/x/net/html"
)

type Config struct {
	// MaxDepth is how many links away from the start page the crawl goes.
	// 0 fetches only the start page.
	MaxDepth int `yaml:"max_depth"`

	// MaxPages caps the number of pages fetched.
	MaxPages int `yaml:"max_pages"`
}

func DefaultConfig() Config {
	return Config{MaxDepth: 1, MaxPages: 25}
}

// Visit is one fetched page. Err is set when the fetch failed; Response is
// nil in that case.
type Visit struct {
	URL      string
	Depth    int
	Response *webclient.Response
	Err      error
}

// Spider crawls breadth-first within the start page's host.
type Spider struct {
	cfg    Config
	wc     webclient.WebClient
	logger logging.Logger
}

var skipExt = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".ico": true, ".webp": true, ".woff": true, ".woff2": true, ".pdf": true,
	".zip": true, ".mp4": true, ".mp3": true,
}

func NewSpider(cfg Config, wc webclient.WebClient, logger logging.Logger) *Spider {
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Spider{
		cfg:    cfg,
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "spider"}),
	}
}

// Enumerate returns the pages reachable from target, in crawl order.
func (s *Spider) Enumerate(ctx context.Context, target string) ([]string, error) {
	return s.Crawl(ctx, target, nil)
}

// Crawl fetches target and the same-host pages it links to, breadth-first,
// calling visit for every fetch. It returns the fetched URLs in order.
func (s *Spider) Crawl(ctx context.Context, target string, visit func(Visit)) ([]string, error) {
	if s.wc == nil {
		return nil, errors.New("spider: no web client")
	}
	root, err := utils.NewURLTools(target)
	if err != nil {
		return nil, err
	}
	if root.URL.Scheme != "http" && root.URL.Scheme != "https" {
		return nil, fmt.Errorf("spider: unsupported scheme %q", root.URL.Scheme)
	}

	start := root.URL.String()
	depth := map[string]int{start: 0}
	queue := []string{start}
	var fetched []string

	for len(queue) > 0 && len(fetched) < s.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return fetched, err
		}
		page := queue[0]
		queue = queue[1:]
		d := depth[page]

		resp, err := s.wc.Get(ctx, page)
		fetched = append(fetched, page)
		if visit != nil {
			visit(Visit{URL: page, Depth: d, Response: resp, Err: err})
		}
		if err != nil {
			s.logger.Warn("error while crawling page",
				logging.Field{Key: "url", Value: page},
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		if d >= s.cfg.MaxDepth || !resp.OK() || !resp.IsHTML() {
			continue
		}

		for _, link := range s.links(page, resp.Body) {
			lt, err := utils.NewURLTools(link)
			if err != nil || !root.SameHost(lt) {
				continue
			}
			key := lt.URL.String()
			if _, seen := depth[key]; seen {
				continue
			}
			depth[key] = d + 1
			queue = append(queue, key)
		}
	}

	s.logger.Info("crawl finished",
		logging.Field{Key: "target", Value: start},
		logging.Field{Key: "pages", Value: len(fetched)})
	return fetched, nil
}

// links returns absolute navigable links from anchors, image maps and
// forms that submit with GET.
func (s *Spider) links(base string, body []byte) []string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("couldn't parse page", logging.Field{Key: "url", Value: base})
		return nil
	}
	bt, err := utils.NewURLTools(base)
	if err != nil {
		return nil
	}

	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if ref := navigable(n); ref != "" {
				if abs, err := bt.Resolve(ref); err == nil && crawlable(abs) {
					out = append(out, abs)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func navigable(n *html.Node) string {
	switch n.Data {
	case "a", "area":
		return attr(n, "href")
	case "form":
		if m := strings.ToLower(attr(n, "method")); m == "" || m == "get" {
			return attr(n, "action")
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func crawlable(abs string) bool {
	u, err := utils.NewURLTools(abs)
	if err != nil {
		return false
	}
	if u.URL.Scheme != "http" && u.URL.Scheme != "https" {
		return false
	}
	return !skipExt[strings.ToLower(path.Ext(u.URL.Path))]
}
