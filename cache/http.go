package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// HTTPBackend is the generic object-store backend of spec.md §4.3.1: a
// URL template expanded per ABI tag, read with GET/HEAD and written with
// PUT through plain net/http requests. The templates are Go text/templates
// whose only variable is {{.Sha}}, the ABI tag; there are no name,
// triplet or version placeholders.
type HTTPBackend struct {
	Client   *http.Client
	ReadTmpl *template.Template
	// WriteTmpl is nil for a read-only feed.
	WriteTmpl *template.Template
	Headers   map[string]string
}

// NewHTTPBackend parses readTemplate/writeTemplate ("" disables writes)
// using Go's text/template so operators can use "{{.Sha}}"-style
// placeholders in the same spirit as vcpkg's "{sha}" tokens.
func NewHTTPBackend(readTemplate, writeTemplate string, headers map[string]string) (*HTTPBackend, error) {
	readTmpl, err := template.New("read").Parse(readTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parsing http cache read template")
	}
	b := &HTTPBackend{Client: http.DefaultClient, ReadTmpl: readTmpl, Headers: headers}
	if writeTemplate != "" {
		writeTmpl, err := template.New("write").Parse(writeTemplate)
		if err != nil {
			return nil, errors.Wrap(err, "parsing http cache write template")
		}
		b.WriteTmpl = writeTmpl
	}
	return b, nil
}

func (b *HTTPBackend) Kind() string { return "http" }

type httpTemplateVars struct {
	Sha string
}

func (b *HTTPBackend) urlFor(tmpl *template.Template, abi string) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, httpTemplateVars{Sha: abi}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (b *HTTPBackend) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range b.Headers {
		req.Header.Set(k, v)
	}
	return b.Client.Do(req)
}

// Preflight issues one HEAD request per tag; spec.md §4.3.3 allows a
// backend without a true batch API to fall back this way as long as it
// still returns a same-length result.
func (b *HTTPBackend) Preflight(ctx context.Context, abis []string) ([]bool, error) {
	out := make([]bool, len(abis))
	for i, abi := range abis {
		url, err := b.urlFor(b.ReadTmpl, abi)
		if err != nil {
			return nil, err
		}
		resp, err := b.do(ctx, http.MethodHead, url)
		if err != nil {
			out[i] = false
			continue
		}
		resp.Body.Close()
		out[i] = resp.StatusCode == http.StatusOK
	}
	return out, nil
}

func (b *HTTPBackend) ReadTo(ctx context.Context, abi string, destDir string) (bool, error) {
	url, err := b.urlFor(b.ReadTmpl, abi)
	if err != nil {
		return false, err
	}
	resp, err := b.do(ctx, http.MethodGet, url)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("http cache: GET %s: status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp("", "vcpkg-cache-*.zip")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := extractZip(tmpPath, destDir); err != nil {
		return false, errors.Wrap(err, "extracting downloaded archive")
	}
	return true, nil
}

func (b *HTTPBackend) WriteFrom(ctx context.Context, abi string, srcDir string) error {
	if b.WriteTmpl == nil {
		return fmt.Errorf("http cache: backend is read-only, no write template configured")
	}
	url, err := b.urlFor(b.WriteTmpl, abi)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "vcpkg-cache-*.zip")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := createZip(srcDir, tmpPath); err != nil {
		return errors.Wrap(err, "archiving for upload")
	}
	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return err
	}
	for k, v := range b.Headers {
		req.Header.Set(k, v)
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http cache: PUT %s: status %s", url, resp.Status)
	}
	return nil
}
