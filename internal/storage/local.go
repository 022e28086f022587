package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/fileutil"
	"clipforge/internal/services"
)

// Object describes one stored object.
type Object struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Local stores objects on the filesystem below a root directory.
type Local struct {
	root           string
	publicBase     string
	tempPrefix     string
	artifactPrefix string
}

// NewLocal builds a filesystem store from the storage configuration.
func NewLocal(cfg config.Storage) (*Local, error) {
	root := strings.TrimSpace(cfg.RootDir)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "root_dir is empty", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	tempPrefix := strings.Trim(strings.TrimSpace(cfg.TempPrefix), "/")
	if tempPrefix == "" {
		tempPrefix = "tmp"
	}
	artifactPrefix := strings.Trim(strings.TrimSpace(cfg.ArtifactPrefix), "/")
	if artifactPrefix == "" {
		artifactPrefix = "artifacts"
	}
	return &Local{
		root:           abs,
		publicBase:     strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		tempPrefix:     tempPrefix,
		artifactPrefix: artifactPrefix,
	}, nil
}

// Root returns the directory backing the store.
func (l *Local) Root() string { return l.root }

// TempKey returns the key for a temporary object owned by one item.
func (l *Local) TempKey(jobID, itemID, name string) string {
	return path.Join(l.tempPrefix, jobID, itemID, name)
}

// ArtifactKey returns the key for a published job artifact.
func (l *Local) ArtifactKey(jobID, name string) string {
	return path.Join(l.artifactPrefix, jobID, name)
}

// IsTemp reports whether key lives under the temporary prefix.
func (l *Local) IsTemp(key string) bool {
	return strings.HasPrefix(key, l.tempPrefix+"/")
}

// Path maps key onto the filesystem, rejecting keys that escape the root.
func (l *Local) Path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Locate returns the address consumers use to fetch key: a URL below the
// public base when one is configured, otherwise a file:// URL.
func (l *Local) Locate(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if l.publicBase != "" {
		return l.publicBase + "/" + escapeKey(clean), nil
	}
	p := filepath.Join(l.root, filepath.FromSlash(clean))
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
}

// Put copies the local file at src into key with size and hash verification.
func (l *Local) Put(ctx context.Context, key, src string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	dst, err := l.Path(key)
	if err != nil {
		return Object{}, err
	}
	if _, err := fileutil.CopyVerified(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, services.Wrap(services.ErrNotFound, "storage", "put", "source file missing", err)
		}
		return Object{}, services.Wrap(services.ErrTransient, "storage", "put", key, err)
	}
	return l.Stat(ctx, key)
}

// PutReader stores the content of r under key.
func (l *Local) PutReader(ctx context.Context, key string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	dst, err := l.Path(key)
	if err != nil {
		return Object{}, err
	}
	if _, _, err := fileutil.WriteAtomic(dst, r, 0o644); err != nil {
		return Object{}, services.Wrap(services.ErrTransient, "storage", "put", key, err)
	}
	return l.Stat(ctx, key)
}

// Stat describes key.
func (l *Local) Stat(_ context.Context, key string) (Object, error) {
	p, err := l.Path(key)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, services.Wrap(services.ErrNotFound, "storage", "stat", key, err)
		}
		return Object{}, services.Wrap(services.ErrTransient, "storage", "stat", key, err)
	}
	return Object{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Open returns a reader for key.
func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "storage", "open", key, err)
		}
		return nil, services.Wrap(services.ErrTransient, "storage", "open", key, err)
	}
	return f, nil
}

// Delete removes key and prunes empty parent directories. Deleting a
// missing object succeeds.
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "storage", "delete", key, err)
	}
	l.prune(filepath.Dir(p))
	return nil
}

// List returns the objects under prefix, skipping in-progress writes.
func (l *Local) List(ctx context.Context, prefix string) ([]Object, error) {
	clean, err := cleanKey(prefix)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(l.root, filepath.FromSlash(clean))
	var out []Object
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || fileutil.IsPartial(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		out = append(out, Object{Key: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "list", prefix, err)
	}
	return out, nil
}

// SweepTemp deletes temporary objects last modified before olderThan and
// returns how many were removed.
func (l *Local) SweepTemp(ctx context.Context, olderThan time.Time) (int, error) {
	objects, err := l.List(ctx, l.tempPrefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, obj := range objects {
		if !obj.ModTime.Before(olderThan) {
			continue
		}
		if err := l.Delete(ctx, obj.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// CheckWritable verifies the root can be created and written.
func (l *Local) CheckWritable() error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(l.root, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (l *Local) prune(dir string) {
	for dir != l.root && strings.HasPrefix(dir, l.root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "key", "empty object key", nil)
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != strings.Trim(key, "/") {
		return "", services.Wrap(services.ErrValidation, "storage", "key", fmt.Sprintf("invalid object key %q", key), nil)
	}
	return clean, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
