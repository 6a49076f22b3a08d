package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// commandTimeout bounds a single clipboard read.
const commandTimeout = 5 * time.Second

// commandProvider reads the clipboard by running an external utility.
type commandProvider struct {
	name string
	args []string
}

func (c *commandProvider) Name() string {
	return c.name
}

func (c *commandProvider) ReadText(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.name, c.args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	return string(out), nil
}

// chainProvider tries each provider in order and returns the first success.
type chainProvider struct {
	providers []Provider
}

func (c *chainProvider) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (c *chainProvider) ReadText(ctx context.Context) (string, error) {
	var errs []error
	for _, p := range c.providers {
		text, err := p.ReadText(ctx)
		if err == nil {
			return text, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrUnavailable
	}
	return "", errors.Join(errs...)
}

// unavailable is the Provider used when nothing else works.
type unavailable struct{}

func (unavailable) Name() string { return "none" }

func (unavailable) ReadText(context.Context) (string, error) {
	return "", ErrUnavailable
}

// installed returns the command providers whose binaries are on PATH.
func installed(candidates ...*commandProvider) []Provider {
	var out []Provider
	for _, c := range candidates {
		if _, err := exec.LookPath(c.name); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// Available reports whether p can read the clipboard at all.
func Available(p Provider) bool {
	_, ok := p.(unavailable)
	return !ok
}
