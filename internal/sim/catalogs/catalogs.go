// Package catalogs loads the resource, building and crop templates. Each
// catalog file is validated against an embedded JSON Schema and digested so
// snapshots and the run index can record exactly which templates a world used.
package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"villagesim.ai/internal/sim/resources"
)

//go:embed defaults/*.json schemas/*.json
var embedded embed.FS

const (
	resourcesFile = "resources.json"
	buildingsFile = "buildings.json"
	cropsFile     = "crops.json"
)

type Catalogs struct {
	Resources ResourceCatalog
	Buildings BuildingCatalog
	Crops     CropCatalog
}

type ResourceCatalog struct {
	IDs    []string
	ByID   map[string]*resources.Kind
	Digest string
}

type ResourceDef struct {
	ID        string   `json:"id"`
	Weight    float64  `json:"weight"`
	StackSize int      `json:"stack_size,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Nutrition float64  `json:"nutrition,omitempty"`
}

type Stack struct {
	Kind   string  `json:"kind"`
	Amount float64 `json:"amount"`
}

type BuildingCatalog struct {
	ByID   map[string]BuildingDef
	Digest string
}

type BuildingDef struct {
	ID           string  `json:"id"`
	WorkSeconds  float64 `json:"work_seconds"`
	Requirements []Stack `json:"requirements,omitempty"`
	Storage      bool    `json:"storage,omitempty"`
	Bed          bool    `json:"bed,omitempty"`
	Toilet       bool    `json:"toilet,omitempty"`
}

type CropCatalog struct {
	ByID   map[string]CropDef
	Digest string
}

type CropDef struct {
	ID             string  `json:"id"`
	GrowSeconds    float64 `json:"grow_seconds"`
	HarvestSeconds float64 `json:"harvest_seconds"`
	Yield          []Stack `json:"yield"`
	Seeds          *Stack  `json:"seeds,omitempty"`
}

// Load reads the three catalog files from configDir.
func Load(configDir string) (*Catalogs, error) {
	read := func(name string) ([]byte, error) { return os.ReadFile(filepath.Join(configDir, name)) }
	return load(read)
}

// Default returns the catalogs compiled into the binary.
func Default() (*Catalogs, error) {
	read := func(name string) ([]byte, error) { return embedded.ReadFile("defaults/" + name) }
	return load(read)
}

// MustDefault is Default for tests and tools where the embedded files are
// known to be valid.
func MustDefault() *Catalogs {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

func load(read func(string) ([]byte, error)) (*Catalogs, error) {
	var c Catalogs
	raw, err := read(resourcesFile)
	if err != nil {
		return nil, err
	}
	if err := loadResources(raw, &c.Resources); err != nil {
		return nil, err
	}
	if raw, err = read(buildingsFile); err != nil {
		return nil, err
	}
	if err := loadBuildings(raw, &c.Buildings); err != nil {
		return nil, err
	}
	if raw, err = read(cropsFile); err != nil {
		return nil, err
	}
	if err := loadCrops(raw, &c.Crops); err != nil {
		return nil, err
	}
	if err := c.crossCheck(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func schemaFor(file string) (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemas = map[string]*jsonschema.Schema{}
		for _, f := range []string{resourcesFile, buildingsFile, cropsFile} {
			name := f[:len(f)-len(".json")] + ".schema.json"
			src, err := embedded.ReadFile("schemas/" + name)
			if err != nil {
				schemaErr = err
				return
			}
			s, err := jsonschema.CompileString("https://villagesim.ai/schemas/"+name, string(src))
			if err != nil {
				schemaErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			schemas[f] = s
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return schemas[file], nil
}

func validate(file string, raw []byte) error {
	s, err := schemaFor(file)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	return nil
}

func loadResources(raw []byte, out *ResourceCatalog) error {
	if err := validate(resourcesFile, raw); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	var defs []ResourceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("%s: %w", resourcesFile, err)
	}
	out.ByID = map[string]*resources.Kind{}
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("%s: duplicate id %q", resourcesFile, d.ID)
		}
		out.ByID[d.ID] = &resources.Kind{
			Name:      d.ID,
			Weight:    d.Weight,
			StackSize: d.StackSize,
			Groups:    append([]string(nil), d.Groups...),
			Nutrition: d.Nutrition,
		}
		out.IDs = append(out.IDs, d.ID)
	}
	sort.Strings(out.IDs)
	return nil
}

func loadBuildings(raw []byte, out *BuildingCatalog) error {
	if err := validate(buildingsFile, raw); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	var defs []BuildingDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("%s: %w", buildingsFile, err)
	}
	out.ByID = map[string]BuildingDef{}
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("%s: duplicate id %q", buildingsFile, d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadCrops(raw []byte, out *CropCatalog) error {
	if err := validate(cropsFile, raw); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	var defs []CropDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("%s: %w", cropsFile, err)
	}
	out.ByID = map[string]CropDef{}
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("%s: duplicate id %q", cropsFile, d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

// crossCheck makes sure every stack names a known resource kind.
func (c *Catalogs) crossCheck() error {
	check := func(where string, s Stack) error {
		if _, ok := c.Resources.ByID[s.Kind]; !ok {
			return fmt.Errorf("%s: unknown resource %q", where, s.Kind)
		}
		return nil
	}
	for id, b := range c.Buildings.ByID {
		for _, s := range b.Requirements {
			if err := check(buildingsFile+" "+id, s); err != nil {
				return err
			}
		}
	}
	for id, cr := range c.Crops.ByID {
		for _, s := range cr.Yield {
			if err := check(cropsFile+" "+id, s); err != nil {
				return err
			}
		}
		if cr.Seeds != nil {
			if err := check(cropsFile+" "+id, *cr.Seeds); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Catalogs) Kind(id string) (*resources.Kind, bool) {
	k, ok := c.Resources.ByID[id]
	return k, ok
}

// Bucket converts stacks into an unmarked bucket.
func (c *Catalogs) Bucket(stacks []Stack) (*resources.Bucket, error) {
	b := resources.NewBucket()
	for _, s := range stacks {
		k, ok := c.Kind(s.Kind)
		if !ok {
			return nil, fmt.Errorf("unknown resource %q", s.Kind)
		}
		b.Add(resources.Q(k, s.Amount), resources.Unmarked)
	}
	return b, nil
}

// KindsInGroup returns the kinds tagged with group, sorted by id.
func (c *Catalogs) KindsInGroup(group string) []*resources.Kind {
	var out []*resources.Kind
	for _, id := range c.Resources.IDs {
		if k := c.Resources.ByID[id]; k.InGroup(group) {
			out = append(out, k)
		}
	}
	return out
}

// Digest combines the three file digests.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(c.Resources.Digest + c.Buildings.Digest + c.Crops.Digest))
}
