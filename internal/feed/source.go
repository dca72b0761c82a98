// Package feed loads per-marketplace floor-price feeds. Feeds are CSV files
// dropped hourly by an upstream system, either into a local directory or an
// S3-compatible bucket; the loader parses them into floor price records and
// checks their freshness.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
)

// Source supplies the raw feed file for a marketplace along with its
// modification time. Implementations return domain.ErrNotFound (wrapped)
// when no feed exists for the marketplace.
type Source interface {
	Open(ctx context.Context, marketplaceCode string) (io.ReadCloser, time.Time, error)
}

// feedFileName returns the conventional feed file name for a marketplace,
// e.g. "de_floor_prices.csv".
func feedFileName(marketplaceCode string) string {
	return strings.ToLower(marketplaceCode) + "_floor_prices.csv"
}

// DirSource reads feed files from a local directory drop.
type DirSource struct {
	root string
}

// NewDirSource creates a DirSource rooted at the given directory.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Open returns the feed file for the marketplace and its mtime.
func (s *DirSource) Open(_ context.Context, marketplaceCode string) (io.ReadCloser, time.Time, error) {
	p := filepath.Join(s.root, feedFileName(marketplaceCode))

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, fmt.Errorf("feed: %s: %w", p, domain.ErrNotFound)
		}
		return nil, time.Time{}, fmt.Errorf("feed: stat %s: %w", p, err)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("feed: open %s: %w", p, err)
	}
	return f, info.ModTime(), nil
}

// S3Source reads feed files from object storage under a key prefix.
type S3Source struct {
	reader domain.BlobReader
	prefix string
}

// NewS3Source creates an S3Source reading through the given blob reader.
// The prefix is prepended to every feed file key.
func NewS3Source(reader domain.BlobReader, prefix string) *S3Source {
	return &S3Source{reader: reader, prefix: prefix}
}

func (s *S3Source) key(marketplaceCode string) string {
	if s.prefix == "" {
		return feedFileName(marketplaceCode)
	}
	return path.Join(s.prefix, feedFileName(marketplaceCode))
}

// Open returns the feed object for the marketplace and its LastModified
// timestamp.
func (s *S3Source) Open(ctx context.Context, marketplaceCode string) (io.ReadCloser, time.Time, error) {
	key := s.key(marketplaceCode)

	info, err := s.reader.Stat(ctx, key)
	if err != nil {
		return nil, time.Time{}, err
	}

	body, err := s.reader.Get(ctx, key)
	if err != nil {
		return nil, time.Time{}, err
	}
	return body, info.LastModified, nil
}
