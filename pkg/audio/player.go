// Package audio plays alert sounds and watches a microphone for loud
// anomalies.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// DefaultSounds maps each alert sound key to <dir>/<key>.wav.
func DefaultSounds(dir string) map[string]string {
	sounds := make(map[string]string)
	for _, key := range []string{alert.SoundIsolated, alert.SoundSurrounded, alert.SoundSOS, alert.SoundHighRisk} {
		sounds[key] = filepath.Join(dir, key+".wav")
	}
	return sounds
}

// RunFunc runs an external command to completion.
type RunFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Player plays sound files through an external player process ("aplay" by
// default). A new sound interrupts the one currently playing.
type Player struct {
	sounds  map[string]string
	command []string
	run     RunFunc
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithCommand sets the player command; the file path is appended.
func WithCommand(name string, args ...string) PlayerOption {
	return func(p *Player) { p.command = append([]string{name}, args...) }
}

// WithRunner replaces process execution (for tests).
func WithRunner(run RunFunc) PlayerOption {
	return func(p *Player) { p.run = run }
}

// WithPlayerLogger sets the logger.
func WithPlayerLogger(l *slog.Logger) PlayerOption {
	return func(p *Player) { p.logger = l }
}

// NewPlayer creates a player for the given key to file mapping.
func NewPlayer(sounds map[string]string, opts ...PlayerOption) *Player {
	p := &Player{
		sounds:  sounds,
		command: []string{"aplay", "-q"},
		run:     execRun,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.Component(p.logger, "audio")
	return p
}

// Play starts playing the sound for key and returns immediately.
func (p *Player) Play(key string) {
	file, ok := p.sounds[key]
	if !ok {
		p.logger.Warn("unknown sound", "key", key)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	args := append(append([]string{}, p.command[1:]...), file)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		if err := p.run(ctx, p.command[0], args...); err != nil && ctx.Err() == nil {
			p.logger.Warn("playback failed", "key", key, "file", file, log.Err(fmt.Errorf("%s: %w", p.command[0], err)))
		}
	}()
}

// Stop interrupts any playback and waits for player processes to exit.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}
