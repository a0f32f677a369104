package repository

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cyclopsgroup/gitcon/pkg/resource"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

// URLRepository serves resources below an HTTP base URL. Every read is a
// request; nothing is stored locally.
type URLRepository struct {
	client *http.Client
	base   *url.URL
}

func NewURL(base string, client *http.Client) (*URLRepository, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url %q: %w", pkgsync.ErrInvalidArgument, base, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme in %q", pkgsync.ErrInvalidArgument, base)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/"
	return &URLRepository{client: client, base: u}, nil
}

func (r *URLRepository) Resource(path string) resource.Resource {
	return resource.URL(r.client, r.base, r.base).Reference("/" + strings.TrimPrefix(strings.TrimSpace(path), "/"))
}

func (r *URLRepository) String() string {
	return r.base.String()
}
