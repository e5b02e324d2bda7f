package content

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore keeps bodies as files under a root directory. Signed URLs point
// at the API's /content route and carry an HMAC-SHA256 signature over the
// key and expiry.
type FileStore struct {
	root       string
	publicURL  string
	signingKey []byte
	now        func() time.Time
}

const tempPrefix = ".tmp-"

// NewFileStore creates the root directory if needed. publicURL is the base
// URL of the API serving /content (e.g. http://localhost:8080).
func NewFileStore(root, publicURL string, signingKey []byte) (*FileStore, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("signing key must not be empty")
	}

	// 0700: owner-only access
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &FileStore{
		root:       root,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
		signingKey: signingKey,
		now:        time.Now,
	}, nil
}

// Put writes body to a temporary file and links it into place under a new
// key.
func (s *FileStore) Put(ctx context.Context, articleURL, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := KeyFor(articleURL)
	filename, err := s.path(key)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create content directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close content file: %w", err)
	}
	// Link fails if the key exists, so a stored body is never replaced.
	err = os.Link(tmpName, filename)
	os.Remove(tmpName)
	if err != nil {
		return "", fmt.Errorf("failed to store content: %w", err)
	}

	return key, nil
}

// Get reads the body stored under key.
func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	filename, err := s.path(key)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	return string(data), nil
}

// SignedURL returns <publicURL>/content/<key>?expires=<unix>&signature=<hex>.
func (s *FileStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	filename, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat content: %w", err)
	}

	expires := s.now().Add(clampExpiry(expiry)).Unix()
	params := url.Values{}
	params.Set("expires", strconv.FormatInt(expires, 10))
	params.Set("signature", s.sign(key, expires))

	return s.publicURL + "/content/" + key + "?" + params.Encode(), nil
}

// Verify checks the expires and signature query values of a signed URL for
// key.
func (s *FileStore) Verify(key, expires, signature string) error {
	expiresAt, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	want, _ := hex.DecodeString(s.sign(key, expiresAt))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}

	if s.now().Unix() > expiresAt {
		return ErrExpired
	}

	return nil
}

// Delete removes the body stored under key. Missing keys are not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	filename, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// List walks the root directory. Temporary files from interrupted writes are
// skipped.
func (s *FileStore) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}

		objects = append(objects, Object{
			Key:        filepath.ToSlash(rel),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}

	return objects, nil
}

func (s *FileStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key + "|" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// path maps key to a file under root, rejecting keys that escape it.
func (s *FileStore) path(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || cleaned != "/"+key {
		return "", ErrNotFound
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned[1:])), nil
}
