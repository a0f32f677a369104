package resource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// URL returns a resource fetched with an HTTP GET on u. Root-relative
// references resolve against root.
func URL(client *http.Client, root, u *url.URL) Resource {
	if client == nil {
		client = http.DefaultClient
	}
	return &remote{client: client, root: root, u: u}
}

type remote struct {
	client *http.Client
	root   *url.URL
	u      *url.URL
}

func (r *remote) Read(ctx context.Context, consume func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s: unsuccessful status code %d", r.u, resp.StatusCode)
	}

	return consume(resp.Body)
}

func (r *remote) Reference(rel string) Resource {
	rel = strings.TrimSpace(rel)
	ref := &url.URL{Path: rel}

	if strings.HasPrefix(rel, "/") {
		base := *r.root
		base.Path = strings.TrimSuffix(base.Path, "/") + "/"
		ref.Path = strings.TrimPrefix(rel, "/")
		return &remote{client: r.client, root: r.root, u: base.ResolveReference(ref)}
	}

	return &remote{client: r.client, root: r.root, u: r.u.ResolveReference(ref)}
}

func (r *remote) String() string {
	return r.u.String()
}
