// Package server exposes a ZIM archive registry over HTTP: a home page
// listing archives, per-archive browsing and title search, and raw article
// retrieval by namespace and URL.
package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kiwixgo/zimservd/internal/registry"
	"github.com/kiwixgo/zimservd/internal/search"
	"github.com/kiwixgo/zimservd/internal/zim"
)

const (
	// searchCandidateLimit bounds how many candidates Bluge returns before
	// the BM25 reranking pass narrows them down to SearchResultLimit.
	searchCandidateLimit = 200
	// SearchResultLimit is how many ranked results a search response shows.
	SearchResultLimit = 25
)

// Server wires an archive registry to an Echo HTTP router.
type Server struct {
	Echo *echo.Echo
	reg  *registry.Registry
	tmpl *template.Template
}

// New builds a Server. templatePath points at a single HTML file containing
// the named templates "home", "archive", "article", "search", and "error".
func New(reg *registry.Registry, templatePath string) (*Server, error) {
	tmpl, err := template.ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("server: parsing templates: %w", err)
	}

	s := &Server{Echo: echo.New(), reg: reg, tmpl: tmpl}
	s.Echo.HideBanner = true
	s.Echo.HTTPErrorHandler = s.handleError
	s.registerMiddleware()
	s.registerRoutes()
	return s, nil
}

// registerMiddleware installs request-level protections: a per-client-IP
// token bucket so one abusive client cannot starve the rest, unlike a
// single shared bucket for the whole server.
func (s *Server) registerMiddleware() {
	config := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(5),
				Burst:     10,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.String(http.StatusForbidden, "rate limiter error")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.String(http.StatusTooManyRequests, "too many requests, slow down")
		},
	}
	s.Echo.Use(middleware.RateLimiterWithConfig(config))
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleHome)
	s.Echo.GET("/:first", s.handleFirstSegment)
	s.Echo.GET("/:first/*rest", s.handleFirstSegment)
}

// handleError renders the shared error template instead of Echo's default
// plain-text body.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
	}
	// Render into a buffer first: writing the body commits the response, so
	// the status code must be sent together with it.
	var buf bytes.Buffer
	if err2 := s.tmpl.ExecuteTemplate(&buf, "error", errorPage{
		Title:   http.StatusText(code),
		Message: err.Error(),
	}); err2 != nil {
		logrus.WithError(err2).Error("rendering error template")
		c.String(code, err.Error())
		return
	}
	c.HTMLBlob(code, buf.Bytes())
}

type homePage struct {
	Archives []registry.ArchiveInfo
}

func (s *Server) handleHome(c echo.Context) error {
	return s.tmpl.ExecuteTemplate(c.Response(), "home", homePage{Archives: s.reg.List()})
}

// handleFirstSegment dispatches on the first path segment. If it names a
// known archive, the rest of the path is resolved within that archive.
// Otherwise, if it is a single byte, it is treated as a bare namespace for
// an embedded asset request (image, stylesheet) whose page omitted the
// archive prefix; the archive is then recovered from the Referer header.
func (s *Server) handleFirstSegment(c echo.Context) error {
	first := c.Param("first")
	rest := c.Param("rest")

	if _, _, err := s.reg.Get(first); err == nil {
		return s.handleArchiveScoped(c, first, rest)
	}

	if len(first) == 1 {
		archiveName, ok := archiveFromReferer(c.Request().Referer())
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "cannot resolve archive for this asset")
		}
		return s.handleArchiveScoped(c, archiveName, first+"/"+rest)
	}

	return echo.NewHTTPError(http.StatusNotFound, "unknown archive")
}

// archiveFromReferer extracts the archive name (the first path segment)
// from a Referer URL, used to resolve namespace-prefixed asset requests
// that a browser issues without the originating archive in the path.
func archiveFromReferer(referer string) (string, bool) {
	if referer == "" {
		return "", false
	}
	idx := strings.Index(referer, "://")
	path := referer
	if idx >= 0 {
		if slash := strings.Index(referer[idx+3:], "/"); slash >= 0 {
			path = referer[idx+3+slash:]
		} else {
			return "", false
		}
	}
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", false
	}
	return strings.SplitN(path, "/", 2)[0], true
}

func (s *Server) handleArchiveScoped(c echo.Context, archiveName, rest string) error {
	archive, idx, err := s.reg.Get(archiveName)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	if rest == "" {
		if q := c.QueryParam("q"); q != "" {
			return s.handleSearch(c, archiveName, archive, idx, q)
		}
		return s.handleArchiveHome(c, archiveName, archive, idx)
	}

	if rest == "random" {
		return s.handleRandom(c, archiveName, archive, idx)
	}

	namespace, url := splitNamespace(rest)
	return s.handleArticle(c, archiveName, archive, namespace, url)
}

// handleRandom picks a uniformly random article from the archive's title
// index and redirects to it, per-article randomness rather than
// per-namespace so every request has an equal chance at every article.
func (s *Server) handleRandom(c echo.Context, archiveName string, archive *zim.Archive, idx *search.Index) error {
	if idx == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search index not built for this archive")
	}
	n, err := idx.RandomIndex()
	if err != nil {
		return err
	}
	entry, err := archive.ReadEntry(n)
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, articlePath(archiveName, entry.Namespace, entry.URL))
}

// articlePath builds the canonical browsable path for an entry: the
// namespace segment is omitted for ordinary articles (namespace A).
func articlePath(archiveName string, namespace byte, url string) string {
	if namespace == 'A' {
		return fmt.Sprintf("/%s/%s", archiveName, url)
	}
	return fmt.Sprintf("/%s/%c/%s", archiveName, namespace, url)
}

// splitNamespace separates a leading single-byte namespace segment (e.g.
// "I/logo.png") from a bare article path (e.g. "Albert_Einstein", which is
// implicitly namespace A).
func splitNamespace(rest string) (byte, string) {
	segs := strings.SplitN(rest, "/", 2)
	if len(segs[0]) == 1 {
		url := ""
		if len(segs) == 2 {
			url = segs[1]
		}
		return segs[0][0], url
	}
	return 'A', rest
}

type archivePage struct {
	Name       string
	UUID       string
	Metadata   map[string]string
	HasRandom  bool
	ArticleCnt uint32
}

func (s *Server) handleArchiveHome(c echo.Context, name string, archive *zim.Archive, idx *search.Index) error {
	rawMD, err := archive.Metadata()
	if err != nil {
		return err
	}
	md := make(map[string]string, len(rawMD))
	for k, v := range rawMD {
		md[k] = string(v)
	}

	return s.tmpl.ExecuteTemplate(c.Response(), "archive", archivePage{
		Name:       name,
		UUID:       archive.UUID(),
		Metadata:   md,
		HasRandom:  idx != nil,
		ArticleCnt: archive.ArticleCount(),
	})
}

type searchPage struct {
	Archive string
	Query   string
	Results []search.Result
}

func (s *Server) handleSearch(c echo.Context, name string, archive *zim.Archive, idx *search.Index, query string) error {
	if idx == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search index not built for this archive")
	}

	candidates, err := idx.Candidates(query, searchCandidateLimit)
	if err != nil {
		return err
	}

	docs := make([]search.Document, 0, len(candidates))
	for _, cand := range candidates {
		entry, err := archive.ReadEntry(cand.Index)
		if err != nil {
			continue
		}
		docs = append(docs, search.Document{ID: cand.Index, Title: entry.DisplayTitle()})
	}

	ranked := search.RankBM25(query, docs, search.DefaultBM25Params)
	if len(ranked) > SearchResultLimit {
		ranked = ranked[:SearchResultLimit]
	}

	return s.tmpl.ExecuteTemplate(c.Response(), "search", searchPage{
		Archive: name,
		Query:   query,
		Results: ranked,
	})
}

type articlePage struct {
	Archive string
	Title   string
	Body    template.HTML
}

func (s *Server) handleArticle(c echo.Context, archiveName string, archive *zim.Archive, namespace byte, url string) error {
	art, err := archive.GetArticleByURL(namespace, url)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	if namespace != 'A' {
		return c.Blob(http.StatusOK, art.MimeType, art.Content)
	}

	frags := fragmentsOf(art.MimeType, art.Content)
	return s.tmpl.ExecuteTemplate(c.Response(), "article", articlePage{
		Archive: archiveName,
		Title:   art.Title,
		Body:    template.HTML(frags), // nosemgrep: article bodies are the archive's own trusted content
	})
}

type errorPage struct {
	Title   string
	Message string
}
