package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"beamsched/internal/graph"
	"beamsched/internal/opt"
)

var ErrEmptyInstance = errors.New("model: empty instance document")

// ParseInstance decodes one YAML (or JSON) instance document. Unknown
// fields are rejected.
func ParseInstance(r io.Reader) (Instance, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var in Instance
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return Instance{}, ErrEmptyInstance
		}
		return Instance{}, fmt.Errorf("decode instance: %w", err)
	}
	if in.Agents == 0 {
		in.Agents = 1
	}
	return in, nil
}

// LoadInstance reads an instance file. A missing name defaults to the path.
func LoadInstance(path string) (Instance, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Instance{}, err
	}
	in, err := ParseInstance(bytes.NewReader(b))
	if err != nil {
		return Instance{}, fmt.Errorf("%s: %w", path, err)
	}
	if in.Name == "" {
		in.Name = path
	}
	return in, nil
}

// Problem builds the search problem for the instance.
func (in Instance) Problem() (opt.Problem, error) {
	edges := make([]graph.Edge, len(in.Edges))
	for i, e := range in.Edges {
		edges[i] = graph.Edge{From: e.From, To: e.To, Weight: e.Weight}
	}
	return opt.NewProblem(edges, in.Rewards, in.Start, in.Horizon, in.Agents)
}
