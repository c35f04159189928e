package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/nbstat/model"
)

const sessionsTimeout = 2 * time.Second

// vscodeMangled matches the temporary copies VSCode hands to the server.
var vscodeMangled = regexp.MustCompile(`^(.*)-jvsc-([0-9a-fA-F-]{36})\.ipynb$`)

// KernelCollector reads notebook server files from the runtime
// directories and asks every server for its sessions.
type KernelCollector struct {
	RuntimeDirs []string // DefaultRuntimeDirs when empty
	Client      *http.Client
}

// DefaultRuntimeDirs returns the directories Jupyter writes server files to.
func DefaultRuntimeDirs() []string {
	if dir := os.Getenv("JUPYTER_RUNTIME_DIR"); dir != "" {
		return []string{dir}
	}
	var dirs []string
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		dirs = append(dirs, filepath.Join(dir, "jupyter", "runtime"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "jupyter", "runtime"))
	}
	return dirs
}

// ServerInfo is the part of a server file nbstat needs.
type ServerInfo struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	RootDir     string `json:"root_dir"`
	NotebookDir string `json:"notebook_dir"`
	PID         int32  `json:"pid"`
}

// Root returns the directory notebook paths are relative to.
func (s ServerInfo) Root() string {
	if s.RootDir != "" {
		return s.RootDir
	}
	return s.NotebookDir
}

type session struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Notebook *struct {
		Path string `json:"path"`
		Name string `json:"name"`
	} `json:"notebook"`
	Kernel struct {
		ID string `json:"id"`
	} `json:"kernel"`
}

// Kernels returns the kernels of every reachable server. Servers that
// cannot be reached are reported in the error while the rest are returned.
func (c *KernelCollector) Kernels(ctx context.Context) ([]model.Kernel, error) {
	servers, err := c.servers()
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	var kernels []model.Kernel
	var errs []error
	for _, s := range servers {
		ks, err := c.sessions(ctx, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", s.URL, err))
			continue
		}
		kernels = append(kernels, ks...)
	}
	return kernels, errors.Join(errs...)
}

func (c *KernelCollector) servers() ([]ServerInfo, error) {
	dirs := c.RuntimeDirs
	if len(dirs) == 0 {
		dirs = DefaultRuntimeDirs()
	}
	seen := make(map[string]bool)
	var out []ServerInfo
	for _, dir := range dirs {
		var files []string
		for _, pattern := range []string{"jpserver-*.json", "nbserver-*.json"} {
			m, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", dir, err)
			}
			files = append(files, m...)
		}
		sort.Strings(files)
		for _, f := range files {
			s, err := ReadServerFile(f)
			if err != nil || s.URL == "" || seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// ReadServerFile parses one jpserver-*.json or nbserver-*.json file.
func ReadServerFile(path string) (ServerInfo, error) {
	var s ServerInfo
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

func (c *KernelCollector) sessions(ctx context.Context, s ServerInfo) ([]model.Kernel, error) {
	base, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	endpoint := base.JoinPath("api", "sessions")
	endpoint.RawQuery = url.Values{"token": {s.Token}}.Encode()

	ctx, cancel := context.WithTimeout(ctx, sessionsTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sessions: %s", resp.Status)
	}

	var sessions []session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return kernelsFromSessions(s, sessions), nil
}

// kernelsFromSessions maps a sessions listing to kernels.
func kernelsFromSessions(s ServerInfo, sessions []session) []model.Kernel {
	out := make([]model.Kernel, 0, len(sessions))
	for _, ss := range sessions {
		name, rel := ss.Name, ss.Path
		if ss.Notebook != nil {
			name, rel = ss.Notebook.Name, ss.Notebook.Path
		}
		path := rel
		if root := s.Root(); root != "" && !filepath.IsAbs(rel) {
			path = filepath.Join(root, rel)
		}
		if _, err := os.Stat(path); err != nil {
			name, path = demangle(name), demangle(path)
		}
		out = append(out, model.Kernel{
			ID:        ss.Kernel.ID,
			Name:      name,
			Path:      path,
			ServerURL: s.URL,
		})
	}
	return out
}

// demangle turns "Untitled-1-jvsc-<uuid>.ipynb" into "Untitled-1.ipynb".
func demangle(name string) string {
	m := vscodeMangled.FindStringSubmatch(name)
	if m == nil {
		return name
	}
	if _, err := uuid.Parse(m[2]); err != nil {
		return name
	}
	return m[1] + ".ipynb"
}

// ValidKernelID reports whether id looks like a kernel id.
func ValidKernelID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}
