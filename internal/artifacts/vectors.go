package artifacts

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/yungbote/lawgraph-backend/internal/domain"
)

// VectorFile is the decoded form of a vectors/*.bin artifact plus its JSON
// sidecar. Row i of Vectors belongs to IDs[i].
type VectorFile struct {
	Dim     int
	IDs     []string
	Vectors [][]float32
}

const vectorDType = "f32"

// ReadVectorFile reads the packed binary layout:
// header {count u32 LE, dim u32 LE, dtype 4 bytes ("f32\0")} followed by
// count*dim little-endian float32 values. The sidecar at path+".meta.json"
// holds the document IDs in row order.
func ReadVectorFile(path string) (*VectorFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector file: %w", err)
	}
	defer f.Close()

	var header struct {
		Count uint32
		Dim   uint32
		DType [4]byte
	}
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %s: short header", domain.ErrArtifactCorruption, path)
	}
	dtype := string(header.DType[:3])
	if dtype != vectorDType {
		return nil, fmt.Errorf("%w: %s: unsupported dtype %q", domain.ErrArtifactCorruption, path, dtype)
	}
	count := int(header.Count)
	dim := int(header.Dim)
	if count < 0 || dim <= 0 || dim > 1<<14 {
		return nil, fmt.Errorf("%w: %s: bad shape count=%d dim=%d", domain.ErrArtifactCorruption, path, count, dim)
	}

	raw := make([]byte, 4*count*dim)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated payload: %v", domain.ErrArtifactCorruption, path, err)
	}
	vectors := make([][]float32, count)
	off := 0
	for i := 0; i < count; i++ {
		row := make([]float32, dim)
		for j := 0; j < dim; j++ {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
		}
		vectors[i] = row
	}

	ids, err := readVectorSidecar(path + ".meta.json")
	if err != nil {
		return nil, err
	}
	if len(ids) != count {
		return nil, fmt.Errorf(
			"%w: %s: sidecar row mismatch: bin=%d sidecar=%d",
			domain.ErrArtifactCorruption, path, count, len(ids),
		)
	}

	return &VectorFile{Dim: dim, IDs: ids, Vectors: vectors}, nil
}

// WriteVectorFile writes the same layout. Used by reindex tooling and tests.
func WriteVectorFile(path string, dim int, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := struct {
		Count uint32
		Dim   uint32
		DType [4]byte
	}{Count: uint32(len(ids)), Dim: uint32(dim)}
	copy(header.DType[:], vectorDType)
	if err := binary.Write(f, binary.LittleEndian, &header); err != nil {
		return err
	}
	buf := make([]byte, 4*dim)
	for _, row := range vectors {
		if len(row) != dim {
			return fmt.Errorf("vector dimension mismatch: expected=%d got=%d", dim, len(row))
		}
		for j, v := range row {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(v))
		}
		if _, err := f.Write(buf); err != nil {
			return err
		}
	}

	sidecar, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return os.WriteFile(path+".meta.json", sidecar, 0o644)
}

func readVectorSidecar(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read sidecar %s: %v", domain.ErrArtifactCorruption, path, err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: decode sidecar %s: %v", domain.ErrArtifactCorruption, path, err)
	}
	return ids, nil
}
