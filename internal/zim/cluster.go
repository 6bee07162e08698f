package zim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// DefaultClusterCacheSize is the suggested LRU capacity for decompressed
// clusters.
const DefaultClusterCacheSize = 32

// Compression type byte values found in a cluster's leading info byte.
const (
	compressionNone  = 1
	compressionLZMA2 = 4
	compressionZstd  = 5
)

// clusterPayload is a fully decompressed cluster: its raw bytes plus the
// parsed blob-offset table (offsets[i]..offsets[i+1] bounds blob i).
type clusterPayload struct {
	data    []byte
	offsets []uint32
}

// zstdDecoderPool amortizes zstd.Decoder allocation across cluster reads,
// mirroring the pooling strategy the teacher repo uses for the same reason
// (decoder construction is comparatively expensive).
var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil
		}
		return d
	},
}

// GetBlob returns the bytes of blob blobNum within cluster clusterNum,
// transparently decompressing and caching the cluster on first access.
func (a *Archive) GetBlob(clusterNum, blobNum uint32) ([]byte, error) {
	if clusterNum >= a.header.ClusterCount {
		return nil, fmt.Errorf("cluster %d: %w", clusterNum, ErrBlobOutOfRange)
	}

	offset := a.clusterPtrs[clusterNum]
	payload, err := a.loadCluster(clusterNum, offset)
	if err != nil {
		return nil, err
	}
	return payload.blob(blobNum)
}

// loadCluster returns the decompressed payload for the cluster at offset,
// serving from the LRU cache on hit. Concurrent misses for the same offset
// are collapsed via single-flight so only one goroutine decompresses.
func (a *Archive) loadCluster(clusterNum uint32, offset uint64) (*clusterPayload, error) {
	if v, ok := a.clusterCache.Get(offset); ok {
		return v, nil
	}

	key := strconv.FormatUint(offset, 10)
	v, err, _ := a.clusterGroup.Do(key, func() (interface{}, error) {
		if v, ok := a.clusterCache.Get(offset); ok {
			return v, nil
		}
		payload, err := a.decodeClusterAt(clusterNum, offset)
		if err != nil {
			return nil, err
		}
		a.clusterCache.Add(offset, payload)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*clusterPayload), nil
}

func (a *Archive) clusterEnd(clusterNum uint32) uint64 {
	if clusterNum+1 < a.header.ClusterCount {
		return a.clusterPtrs[clusterNum+1]
	}
	return a.header.ChecksumPos
}

func (a *Archive) decodeClusterAt(clusterNum uint32, offset uint64) (*clusterPayload, error) {
	var infoByte [1]byte
	if err := readFullAt(a.file, infoByte[:], int64(offset)); err != nil {
		return nil, err
	}
	compression := infoByte[0] & 0x0F

	end := a.clusterEnd(clusterNum)
	if end < offset+1 {
		return nil, fmt.Errorf("cluster %d: %w", clusterNum, ErrTruncatedArchive)
	}
	compressedLen := int64(end - offset - 1)
	compressed := make([]byte, compressedLen)
	if err := readFullAt(a.file, compressed, int64(offset)+1); err != nil {
		return nil, err
	}

	var raw []byte
	var err error
	switch compression {
	case compressionNone:
		raw = compressed
	case compressionLZMA2:
		raw, err = decodeXZ(compressed)
	case compressionZstd:
		raw, err = decodeZstdPooled(compressed)
	default:
		return nil, fmt.Errorf("cluster %d: compression type %d: %w", clusterNum, compression, ErrUnsupportedCompression)
	}
	if err != nil {
		return nil, fmt.Errorf("cluster %d: %w: %v", clusterNum, ErrDecompressionFailed, err)
	}

	offsets, err := parseBlobOffsets(raw)
	if err != nil {
		return nil, fmt.Errorf("cluster %d: %w", clusterNum, err)
	}
	return &clusterPayload{data: raw, offsets: offsets}, nil
}

func decodeXZ(compressed []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// decodeZstdPooled decompresses a zstd-framed cluster using a pooled
// decoder. io.ReadAll stops exactly at the frame boundary and surfaces any
// stream error, which is what correctly distinguishes genuine corruption
// from end-of-stream.
func decodeZstdPooled(compressed []byte) ([]byte, error) {
	d, _ := zstdDecoderPool.Get().(*zstd.Decoder)
	if d == nil {
		nd, err := zstd.NewReader(bytes.NewReader(compressed), zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil, err
		}
		defer nd.Close()
		return io.ReadAll(nd)
	}
	defer zstdDecoderPool.Put(d)

	if err := d.Reset(bytes.NewReader(compressed)); err != nil {
		return nil, err
	}
	return io.ReadAll(d)
}

// parseBlobOffsets reads the blob-offset table at the start of a
// decompressed cluster payload: offset[0] = 4*(blobCount+1), followed by
// blobCount additional u32 offsets, every one of them read from the
// stream — the last is not assumed to equal the payload length, since
// trailing bytes after the final blob are permitted.
func parseBlobOffsets(payload []byte) ([]uint32, error) {
	if len(payload) < 4 {
		return nil, ErrTruncatedArchive
	}
	first := binary.LittleEndian.Uint32(payload[0:4])
	if first < 4 || first%4 != 0 {
		return nil, ErrTruncatedArchive
	}
	blobCount := first/4 - 1
	if uint64(first) > uint64(len(payload)) {
		return nil, ErrTruncatedArchive
	}

	offsets := make([]uint32, blobCount+1)
	offsets[0] = first
	for i := uint32(1); i <= blobCount; i++ {
		o := 4 * i
		if int(o+4) > len(payload) {
			return nil, ErrTruncatedArchive
		}
		offsets[i] = binary.LittleEndian.Uint32(payload[o : o+4])
	}

	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] || offsets[i] > uint32(len(payload)) {
			return nil, ErrTruncatedArchive
		}
	}
	return offsets, nil
}

func (p *clusterPayload) blob(blobNum uint32) ([]byte, error) {
	if int(blobNum)+1 >= len(p.offsets) {
		return nil, fmt.Errorf("blob %d: %w", blobNum, ErrBlobOutOfRange)
	}
	start, end := p.offsets[blobNum], p.offsets[blobNum+1]
	return p.data[start:end], nil
}

func newClusterCache(size int) (*lru.Cache[uint64, *clusterPayload], error) {
	return lru.New[uint64, *clusterPayload](size)
}
