package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"tompei-viewer/constants"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// FigureKey identifies one rendering. Toggles is the canonical form of the
// visibility map, so equal maps always produce equal keys.
type FigureKey struct {
	DicomPath      string
	AnnotationPath string
	Toggles        string
}

func NewFigureKey(dicomPath, annotationPath string, visibility map[string]bool) FigureKey {
	return FigureKey{
		DicomPath:      dicomPath,
		AnnotationPath: annotationPath,
		Toggles:        CanonicalToggles(visibility),
	}
}

// CanonicalToggles encodes visibility as sorted, quoted label=0|1 pairs.
// A nil map encodes as "-" to keep it apart from an empty one.
func CanonicalToggles(visibility map[string]bool) string {
	if visibility == nil {
		return "-"
	}
	labels := make([]string, 0, len(visibility))
	for label := range visibility {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	pairs := make([]string, 0, len(labels))
	for _, label := range labels {
		state := "0"
		if visibility[label] {
			state = "1"
		}
		pairs = append(pairs, strconv.Quote(label)+"="+state)
	}
	return strings.Join(pairs, ",")
}

// Digest is a stable hex name for the key.
func (key FigureKey) Digest() string {
	h := sha256.New()
	for _, field := range []string{key.DicomPath, key.AnnotationPath, key.Toggles} {
		h.Write([]byte(strconv.Quote(field)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FigureStore is a second cache level that outlives the process.
type FigureStore interface {
	Get(ctx context.Context, key FigureKey) (*Figure, bool, error)
	Put(ctx context.Context, key FigureKey, figure *Figure) error
}

// FigureCache memoizes rendered figures in memory, backed by an optional
// FigureStore.
type FigureCache struct {
	figures *lru.Cache[FigureKey, *Figure]
	store   FigureStore
	logger  *zap.Logger
}

func NewFigureCache(size int, store FigureStore, logger *zap.Logger) (*FigureCache, error) {
	if size <= 0 {
		size = constants.DefaultFigureCache
	}
	figures, err := lru.New[FigureKey, *Figure](size)
	if err != nil {
		return nil, err
	}
	return &FigureCache{figures: figures, store: store, logger: logger}, nil
}

// GetOrRender returns the cached figure for key or renders and caches it.
// Render errors are not cached.
func (cache *FigureCache) GetOrRender(ctx context.Context, key FigureKey, render func() (*Figure, error)) (*Figure, error) {
	if figure, found := cache.figures.Get(key); found {
		return figure, nil
	}

	if cache.store != nil {
		figure, found, err := cache.store.Get(ctx, key)
		if err != nil {
			cache.logger.Warn("Figure store lookup failed", zap.String("key", key.Digest()), zap.Error(err))
		} else if found {
			cache.figures.Add(key, figure)
			return figure, nil
		}
	}

	figure, err := render()
	if err != nil {
		return nil, err
	}
	cache.figures.Add(key, figure)

	if cache.store != nil {
		if err := cache.store.Put(ctx, key, figure); err != nil {
			cache.logger.Warn("Figure store write failed", zap.String("key", key.Digest()), zap.Error(err))
		}
	}
	return figure, nil
}

func (cache *FigureCache) Len() int {
	return cache.figures.Len()
}
