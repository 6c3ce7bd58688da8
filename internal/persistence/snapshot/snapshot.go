package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64   `json:"seed"`
	TickRateHz    int     `json:"tick_rate_hz"`
	TickSeconds   float64 `json:"tick_seconds"`
	Elapsed       float64 `json:"elapsed"`
	CatalogDigest string  `json:"catalog_digest"`

	// Highest marker minted so far; a resumed world continues after it.
	MarkerLast uint64 `json:"marker_last"`
	// Highest entity handle ever handed out. Handles are never reused.
	EntityCap uint32 `json:"entity_cap"`

	Terrain   TerrainV1    `json:"terrain"`
	Villagers []VillagerV1 `json:"villagers"`
	Buildings []BuildingV1 `json:"buildings"`
	Piles     []PileV1     `json:"piles"`
	Plots     []PlotV1     `json:"plots"`
	Plants    []PlantV1    `json:"plants"`
}

type TerrainV1 struct {
	W      int       `json:"w"`
	H      int       `json:"h"`
	Ground []float64 `json:"ground"`
	Above  []float64 `json:"above"`
}

// EntryV1 is one marker slice of a bucket.
type EntryV1 struct {
	Kind   string  `json:"kind"`
	Amount float64 `json:"amount"`
	Marker uint64  `json:"marker,omitempty"`
}

type VillagerV1 struct {
	ID   uint32     `json:"id"`
	Name string     `json:"name"`
	Pos  [2]float64 `json:"pos"`

	Food    float64 `json:"food"`
	Rest    float64 `json:"rest"`
	Bladder float64 `json:"bladder"`

	Movement    float64  `json:"movement"`
	Pickup      float64  `json:"pickup"`
	Work        float64  `json:"work"`
	Harvest     float64  `json:"harvest"`
	CarryWeight float64  `json:"carry_weight"`
	Priorities  []string `json:"priorities"`

	HasCenter bool   `json:"has_center,omitempty"`
	Center    [2]int `json:"center,omitempty"`

	Inventory []EntryV1 `json:"inventory,omitempty"`
	Runner    *RunnerV1 `json:"runner,omitempty"`
}

type RunnerV1 struct {
	Job   string       `json:"job"`
	Outer int          `json:"outer"`
	Plans []HighPlanV1 `json:"plans"`
	Low   *LowPlanV1   `json:"low,omitempty"`
}

type HighPlanV1 struct {
	Kind    uint8    `json:"kind"`
	Target  uint32   `json:"target,omitempty"`
	Sources []uint32 `json:"sources,omitempty"`
	Point   [2]int   `json:"point"`
	Marker  uint64   `json:"marker,omitempty"`
	Pledged bool     `json:"pledged,omitempty"`
	Claimed bool     `json:"claimed,omitempty"`
	Stage   uint8    `json:"stage"`
	Cursor  int      `json:"cursor"`
}

type LowPlanV1 struct {
	Kind      uint8    `json:"kind"`
	Path      [][2]int `json:"path,omitempty"`
	Index     int      `json:"index,omitempty"`
	Until     float64  `json:"until,omitempty"`
	Src       uint32   `json:"src,omitempty"`
	SrcMarker uint64   `json:"src_marker,omitempty"`
	Dst       uint32   `json:"dst,omitempty"`
	DstMarker uint64   `json:"dst_marker,omitempty"`
	ClearDst  bool     `json:"clear_dst,omitempty"`
	Bed       bool     `json:"bed,omitempty"`
	Ticks     int      `json:"ticks"`
	Done      bool     `json:"done,omitempty"`
}

type BuildingV1 struct {
	ID           uint32     `json:"id"`
	Template     string     `json:"template"`
	Pos          [2]float64 `json:"pos"`
	Built        bool       `json:"built"`
	WorkLeft     float64    `json:"work_left"`
	ClaimedBy    uint32     `json:"claimed_by,omitempty"`
	Inventory    []EntryV1  `json:"inventory,omitempty"`
	Requirements []EntryV1  `json:"requirements,omitempty"`
}

type PileV1 struct {
	ID        uint32     `json:"id"`
	Pos       [2]float64 `json:"pos"`
	Waste     bool       `json:"waste,omitempty"`
	Inventory []EntryV1  `json:"inventory"`
}

type PlotV1 struct {
	ID        uint32     `json:"id"`
	Pos       [2]float64 `json:"pos"`
	Crop      string     `json:"crop"`
	Plant     uint32     `json:"plant,omitempty"`
	ClaimedBy uint32     `json:"claimed_by,omitempty"`
}

type PlantV1 struct {
	ID        uint32     `json:"id"`
	Pos       [2]float64 `json:"pos"`
	Crop      string     `json:"crop"`
	Growth    float64    `json:"growth"`
	Plot      uint32     `json:"plot,omitempty"`
	ClaimedBy uint32     `json:"claimed_by,omitempty"`
}

// Path is where the snapshot for tick lives under dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%012d.snap.zst", tick))
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, zstd-compressed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// Latest returns the newest snapshot path in dir, or "" when none exist.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	// Zero-padded tick names sort lexically.
	latest := matches[0]
	for _, m := range matches[1:] {
		if m > latest {
			latest = m
		}
	}
	return latest, nil
}
