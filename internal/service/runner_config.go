package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

// RunnerConfig is the remote configuration delivered to runners on heartbeat.
type RunnerConfig struct {
	Version string         `yaml:"version" json:"version"`
	Config  map[string]any `yaml:"config" json:"config"`
}

// RunnerConfigSource keeps the latest runner config loaded from a YAML file.
// A file without an explicit version is versioned by its content digest.
type RunnerConfigSource struct {
	*core.BaseComponent
	path  string
	watch bool

	current atomic.Pointer[RunnerConfig]
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func NewRunnerConfigSource(path string, watch bool) *RunnerConfigSource {
	return &RunnerConfigSource{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_RUNNER_CONFIG, consts.COMPONENT_LOGGING),
		path:          path,
		watch:         watch,
	}
}

func (s *RunnerConfigSource) Start(ctx context.Context) error {
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if s.path == "" {
		return nil
	}
	if err := s.Reload(); err != nil {
		return err
	}
	if !s.watch {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("runner config watcher: %w", err)
	}
	// 监听目录而不是文件, 编辑器保存时常见 rename+create
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = w
	s.wg.Add(1)
	go s.loop()
	return nil
}

func (s *RunnerConfigSource) Stop(ctx context.Context) error {
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.wg.Wait()
		s.watcher = nil
	}
	return s.BaseComponent.Stop(ctx)
}

func (s *RunnerConfigSource) loop() {
	defer s.wg.Done()
	target := filepath.Clean(s.path)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				logging.Warnf(context.Background(), "runner config reload failed, keeping previous: %v", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Warnf(context.Background(), "runner config watcher: %v", err)
		}
	}
}

// Reload reads the file and swaps the current config.
func (s *RunnerConfigSource) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read runner config %s: %w", s.path, err)
	}
	var rc RunnerConfig
	if err := yaml.Unmarshal(raw, &rc); err != nil {
		return fmt.Errorf("parse runner config %s: %w", s.path, err)
	}
	if rc.Version == "" {
		sum := sha256.Sum256(raw)
		rc.Version = hex.EncodeToString(sum[:6])
	}
	prev := s.current.Swap(&rc)
	if prev == nil || prev.Version != rc.Version {
		logging.Infof(context.Background(), "runner config version %s loaded", rc.Version)
	}
	return nil
}

func (s *RunnerConfigSource) Current() *RunnerConfig {
	if s == nil {
		return nil
	}
	return s.current.Load()
}

// ForVersion returns the current config unless the runner already has it.
func (s *RunnerConfigSource) ForVersion(have string) *RunnerConfig {
	cur := s.Current()
	if cur == nil || cur.Version == have {
		return nil
	}
	return cur
}
