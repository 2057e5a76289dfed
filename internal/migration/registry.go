package migration

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"example.com/healthconnect/internal/storage"
)

// Manifest lists the packages installed on the device.
type Manifest struct {
	Packages []ManifestPackage `yaml:"packages"`
}

// ManifestPackage is one installed package. Icon is base64.
type ManifestPackage struct {
	Name        string   `yaml:"name"`
	AppName     string   `yaml:"app_name"`
	Icon        string   `yaml:"icon"`
	Permissions []string `yaml:"permissions"`
}

// Grant is a permission grant recorded by a Registry.
type Grant struct {
	Permission string
	FirstGrant time.Time
}

// Registry is an in-memory package oracle and permission sink.
type Registry struct {
	mu        sync.RWMutex
	installed map[string]storage.AppInfo
	grants    map[string]map[string]Grant
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		installed: make(map[string]storage.AppInfo),
		grants:    make(map[string]map[string]Grant),
	}
}

// LoadManifest reads a YAML manifest file into a Registry.
func LoadManifest(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes a YAML manifest into a Registry.
func ParseManifest(raw []byte) (*Registry, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	r := NewRegistry()
	for i, p := range m.Packages {
		if p.Name == "" {
			return nil, fmt.Errorf("manifest package %d has no name", i)
		}
		var icon []byte
		var err error
		if p.Icon != "" {
			if icon, err = base64.StdEncoding.DecodeString(p.Icon); err != nil {
				return nil, fmt.Errorf("manifest package %s icon: %w", p.Name, err)
			}
		}
		r.Install(storage.AppInfo{PackageName: p.Name, AppName: p.AppName, Icon: icon})
		for _, perm := range p.Permissions {
			r.grant(p.Name, perm, time.Time{})
		}
	}
	return r, nil
}

// Install marks a package as installed.
func (r *Registry) Install(info storage.AppInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info.Icon = append([]byte(nil), info.Icon...)
	r.installed[info.PackageName] = info
}

// Uninstall removes a package.
func (r *Registry) Uninstall(pkg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.installed, pkg)
}

// Installed implements Oracle.
func (r *Registry) Installed(_ context.Context, pkg string) (storage.AppInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.installed[pkg]
	if !ok {
		return storage.AppInfo{}, false
	}
	info.Icon = append([]byte(nil), info.Icon...)
	return info, true
}

// Grant implements PermissionSink. Existing grants keep their first time.
func (r *Registry) Grant(_ context.Context, pkg string, permissions []string, firstGrant time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range permissions {
		r.grantLocked(pkg, p, firstGrant)
	}
	return nil
}

func (r *Registry) grant(pkg, perm string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grantLocked(pkg, perm, at)
}

func (r *Registry) grantLocked(pkg, perm string, at time.Time) {
	g, ok := r.grants[pkg]
	if !ok {
		g = make(map[string]Grant)
		r.grants[pkg] = g
	}
	if _, exists := g[perm]; !exists {
		g[perm] = Grant{Permission: perm, FirstGrant: at}
	}
}

// Granted returns the permissions held by pkg, sorted.
func (r *Registry) Granted(pkg string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.grants[pkg]))
	for p := range r.grants[pkg] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
