package module

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts a filesystem path into a file URI.
func PathToURI(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

// URIToPath converts a file URI back into a filesystem path.
func URIToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		decoded, decErr := url.PathUnescape(strings.TrimPrefix(uri, "file://"))
		if decErr != nil {
			return filepath.FromSlash(strings.TrimPrefix(uri, "file://"))
		}
		return filepath.FromSlash(decoded)
	}
	p := u.Path
	// Windows drive paths arrive as /c:/...
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

// NameForURI derives the canonical dotted module name from a document URI:
// the path below the first matching root, without extension, with
// separators turned into dots.
func NameForURI(uri string, roots []string, ext string) string {
	name, err := url.PathUnescape(uri)
	if err != nil {
		name = uri
	}
	for _, root := range roots {
		r, rerr := url.PathUnescape(root)
		if rerr != nil {
			r = root
		}
		r = strings.TrimSuffix(r, "/")
		if r != "" && strings.HasPrefix(name, r+"/") {
			name = strings.TrimPrefix(name, r)
			break
		}
	}
	name = strings.TrimPrefix(name, "file://")
	if ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.ReplaceAll(name, "/", ".")
	name = strings.TrimLeft(name, ".")
	return name
}
