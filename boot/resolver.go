package boot

import (
	"net"
	"strings"
	"sync"

	"github.com/waveform80/nobodd/checkpoint"
	"github.com/waveform80/nobodd/disk"
	"github.com/waveform80/nobodd/fat"
	"github.com/waveform80/nobodd/netascii"
	"github.com/waveform80/nobodd/tftp"
)

// openImage caches one board's opened disk image and mounted FAT file
// system, or the error hit trying to mount it (so a damaged image doesn't
// get re-parsed on every request; it just keeps failing).
type openImage struct {
	img *disk.Image
	fs  *fat.FileSystem
	err error
}

// Resolver implements tftp.Resolver against a Registry of boards, a
// partition locator, and a cache of opened images. It is safe for
// concurrent use by multiple transfers.
type Resolver struct {
	partitions disk.PartitionSource

	mu       sync.Mutex
	registry *Registry
	images   map[uint32]*openImage
}

// NewResolver returns a Resolver serving registry's boards, using
// partitions to turn a board's configured partition index into a byte
// window of its image.
func NewResolver(registry *Registry, partitions disk.PartitionSource) *Resolver {
	return &Resolver{
		partitions: partitions,
		registry:   registry,
		images:     make(map[uint32]*openImage),
	}
}

// SetRegistry atomically swaps in a new board registry, e.g. after a
// SIGHUP configuration reload. It also drops the image cache, since boards
// may now point at different images.
func (r *Resolver) SetRegistry(registry *Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry = registry
	r.images = make(map[uint32]*openImage)
}

func normalizeIP(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

func splitLeading(path string) (string, string) {
	path = strings.TrimPrefix(path, "/")
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i+1:]
}

// resolveBoard finds the board a request's path names: the leading path
// segment is a serial prefix; if the path has no prefix segment at all and
// the registry has exactly one board, that board is used as an implicit
// default.
func (r *Resolver) resolveBoard(path string) (Board, string, error) {
	r.mu.Lock()
	registry := r.registry
	r.mu.Unlock()

	head, rest := splitLeading(path)
	if serial, err := NormalizeSerial(head); err == nil {
		if board, ok := registry.Lookup(serial); ok {
			return board, rest, nil
		}
	}
	// The default-board fallback only applies when path carries no prefix
	// segment at all (no '/' separating a serial from the rest of the
	// path, once a leading '/' is stripped); a path with a prefix segment
	// that doesn't resolve to a known board is a genuine miss, not an
	// implicit default.
	if rest == "" {
		if board, ok := registry.Default(); ok {
			return board, head, nil
		}
	}
	return Board{}, "", &tftp.ResolveError{Code: tftp.ErrFileNotFound, Message: "unknown board"}
}

func (r *Resolver) openBoardImage(board Board) (*fat.FileSystem, error) {
	r.mu.Lock()
	if cached, ok := r.images[board.Serial]; ok {
		r.mu.Unlock()
		return cached.fs, cached.err
	}
	r.mu.Unlock()

	fs, err := func() (*fat.FileSystem, error) {
		img, err := disk.Open(board.ImagePath)
		if err != nil {
			return nil, checkpoint.Wrapf(err, "opening image %s", board.ImagePath)
		}
		win, err := r.partitions.Partition(img, board.Partition)
		if err != nil {
			img.Close()
			return nil, checkpoint.Wrapf(err, "locating partition %d of %s", board.Partition, board.ImagePath)
		}
		fs, err := fat.New(win)
		if err != nil {
			img.Close()
			return nil, checkpoint.Wrapf(err, "mounting FAT file system on %s", board.ImagePath)
		}
		r.mu.Lock()
		r.images[board.Serial] = &openImage{img: img, fs: fs}
		r.mu.Unlock()
		return fs, nil
	}()
	if err != nil {
		r.mu.Lock()
		r.images[board.Serial] = &openImage{err: err}
		r.mu.Unlock()
		return nil, err
	}
	return fs, nil
}

// Resolve implements tftp.Resolver.
func (r *Resolver) Resolve(path string, mode string, peer *net.UDPAddr) (tftp.FileReader, int64, error) {
	board, rest, err := r.resolveBoard(path)
	if err != nil {
		return nil, 0, err
	}

	if board.IP != nil && !board.IP.Equal(normalizeIP(peer.IP)) {
		return nil, 0, &tftp.ResolveError{Code: tftp.ErrAccessViolation, Message: "source address not permitted"}
	}

	fs, err := r.openBoardImage(board)
	if err != nil {
		// A damaged or unmountable image isn't the client's fault, so
		// report it as ERROR(0) (undefined) rather than ERROR(1) (file
		// not found).
		return nil, 0, &tftp.ResolveError{Code: tftp.ErrUndefined, Message: "file system unavailable"}
	}

	entry, err := fs.Resolve(rest)
	if err != nil {
		return nil, 0, &tftp.ResolveError{Code: tftp.ErrFileNotFound, Message: "file not found"}
	}
	if entry.IsDir() {
		return nil, 0, &tftp.ResolveError{Code: tftp.ErrFileNotFound, Message: "is a directory"}
	}

	if strings.EqualFold(mode, "netascii") {
		sizer, err := fs.Open(rest)
		if err != nil {
			return nil, 0, &tftp.ResolveError{Code: tftp.ErrFileNotFound, Message: "file not found"}
		}
		size, err := netascii.TranscodedSize(sizer)
		if err != nil {
			// Can't learn the transcoded size up front; carry on without
			// tsize rather than failing the whole transfer over it. A
			// negative size tells Negotiate to drop tsize from the OACK.
			size = -1
		}
		f, err := fs.Open(rest)
		if err != nil {
			return nil, 0, &tftp.ResolveError{Code: tftp.ErrFileNotFound, Message: "file not found"}
		}
		return netascii.NewReader(f), size, nil
	}

	f, err := fs.Open(rest)
	if err != nil {
		return nil, 0, &tftp.ResolveError{Code: tftp.ErrFileNotFound, Message: "file not found"}
	}
	return f, int64(entry.Raw.Size), nil
}
