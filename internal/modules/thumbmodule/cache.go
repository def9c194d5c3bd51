// Package thumbmodule renders and caches small WebP previews for
// scanned media. Requests are fire-and-forget: the pipeline enqueues a
// source path and moves on; when the queue is full requests are dropped
// rather than blocking enrichment.
package thumbmodule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chai2010/webp"

	"github.com/cardhaul/cardhaul/internal/logger"
)

// Cache is a disk-backed thumbnail cache with a bounded render queue
type Cache struct {
	dir     string
	maxEdge int
	queue   chan string

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCache creates a cache storing thumbnails under dir. maxEdge caps
// the longer thumbnail edge; queueSize bounds outstanding requests.
func NewCache(dir string, maxEdge, queueSize int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	if maxEdge <= 0 {
		maxEdge = 320
	}
	if queueSize <= 0 {
		queueSize = 512
	}

	c := &Cache{
		dir:     dir,
		maxEdge: maxEdge,
		queue:   make(chan string, queueSize),
	}
	c.wg.Add(1)
	go c.worker()
	return c, nil
}

// Request enqueues a thumbnail render without blocking. Unsupported
// formats and full queues are silently skipped.
func (c *Cache) Request(sourcePath string) {
	select {
	case c.queue <- sourcePath:
	default:
	}
}

// Get returns the cached thumbnail path for a source file, if rendered
func (c *Cache) Get(sourcePath string) (string, bool) {
	path := c.thumbPath(sourcePath)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Close stops accepting requests and waits for the renderer to drain
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.queue) })
	c.wg.Wait()
}

func (c *Cache) worker() {
	defer c.wg.Done()
	for sourcePath := range c.queue {
		if err := c.render(sourcePath); err != nil {
			logger.Debug("Thumbnail render skipped",
				logger.F("path", sourcePath), logger.F("error", err))
		}
	}
}

// render decodes, downscales, and stores one thumbnail. Already-cached
// thumbnails are not re-rendered.
func (c *Cache) render(sourcePath string) error {
	thumbPath := c.thumbPath(sourcePath)
	if _, err := os.Stat(thumbPath); err == nil {
		return nil
	}

	img, err := decode(sourcePath)
	if err != nil {
		return err
	}
	thumb := downscale(img, c.maxEdge)

	out, err := os.Create(thumbPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return webp.Encode(out, thumb, &webp.Options{Quality: 80})
}

func (c *Cache) thumbPath(sourcePath string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+".webp")
}

func decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Decode(file)
	case ".png":
		return png.Decode(file)
	default:
		return nil, fmt.Errorf("unsupported thumbnail source %s", filepath.Ext(path))
	}
}

// downscale box-samples the image so its longer edge is at most maxEdge
func downscale(img image.Image, maxEdge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(w)
	if h > w {
		scale = float64(maxEdge) / float64(h)
	}
	tw, th := int(float64(w)*scale), int(float64(h)*scale)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	for y := 0; y < th; y++ {
		srcY := bounds.Min.Y + y*h/th
		for x := 0; x < tw; x++ {
			srcX := bounds.Min.X + x*w/tw
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}
