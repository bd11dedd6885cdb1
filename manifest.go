package anyfn

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anyfn/anyfn/runtime/gen"
)

type (
	manifest struct {
		Functions []manifestFunction `yaml:"functions"`
		Constants []manifestConstant `yaml:"constants"`
	}

	manifestFunction struct {
		Name      string          `yaml:"name"`
		Doc       string          `yaml:"doc"`
		Params    []manifestParam `yaml:"params"`
		Return    string          `yaml:"return"`
		DependsOn []string        `yaml:"depends_on"`
	}

	manifestParam struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	}

	manifestConstant struct {
		Name string `yaml:"name"`
		Doc  string `yaml:"doc"`
	}
)

// LoadManifest reads stub declarations from a YAML manifest file. The format
// mirrors the Register surface:
//
//	functions:
//	  - name: square
//	    doc: returns x squared
//	    params:
//	      - {name: x, type: int}
//	    return: int
//	constants:
//	  - name: golden_ratio
//
// Every declared stub is validated before any is returned.
func LoadManifest(path string) ([]gen.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return parseManifest(path, data)
}

// RegisterManifest registers every stub declared in the manifest file.
func (l *Lazy) RegisterManifest(path string) error {
	reqs, err := LoadManifest(path)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		if _, err := l.Register(req); err != nil {
			return fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	return nil
}

func parseManifest(path string, data []byte) ([]gen.Request, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	reqs := make([]gen.Request, 0, len(m.Functions)+len(m.Constants))
	for _, f := range m.Functions {
		params := make([]gen.Param, len(f.Params))
		for i, p := range f.Params {
			params[i] = gen.Param{Name: p.Name, Type: p.Type}
		}
		reqs = append(reqs, gen.Request{
			Name:      f.Name,
			Kind:      gen.KindFunction,
			Params:    params,
			Return:    f.Return,
			Doc:       f.Doc,
			DependsOn: f.DependsOn,
		})
	}
	for _, c := range m.Constants {
		reqs = append(reqs, gen.Request{Name: c.Name, Kind: gen.KindConstant, Doc: c.Doc})
	}
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	return reqs, nil
}
