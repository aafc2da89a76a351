package main

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"devcheck"
)

// specFile is the on-disk shape of a validation target.
type specFile struct {
	Image      string            `yaml:"image"`
	Name       string            `yaml:"name,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Binds      []string          `yaml:"binds,omitempty"`
	Ports      map[string]string `yaml:"ports,omitempty"`
	Command    []string          `yaml:"command,omitempty"`
	WorkingDir string            `yaml:"working-dir,omitempty"`
	Memory     string            `yaml:"memory,omitempty"` // human size, e.g. "2GiB"
	CPUShares  int64             `yaml:"cpu-shares,omitempty"`
}

// loadSpec reads a container spec from a yaml file.
func loadSpec(path string) (devcheck.ContainerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return devcheck.ContainerSpec{}, fmt.Errorf("read spec file: %w", err)
	}

	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return devcheck.ContainerSpec{}, fmt.Errorf("parse spec file: %w", err)
	}
	if f.Image == "" {
		return devcheck.ContainerSpec{}, fmt.Errorf("spec file %s: image is required", path)
	}

	var memoryMB int64
	if f.Memory != "" {
		bytes, err := units.RAMInBytes(f.Memory)
		if err != nil {
			return devcheck.ContainerSpec{}, fmt.Errorf("parse memory %q: %w", f.Memory, err)
		}
		memoryMB = bytes / (1024 * 1024)
	}

	return devcheck.ContainerSpec{
		Image:      f.Image,
		Name:       f.Name,
		Env:        f.Env,
		Binds:      f.Binds,
		Ports:      f.Ports,
		Command:    f.Command,
		WorkingDir: f.WorkingDir,
		MemoryMB:   memoryMB,
		CPUShares:  f.CPUShares,
	}, nil
}
