package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// ServerVersion returns the database server version. The first successful
// probe is cached for the life of the store.
func (s *Store) ServerVersion(ctx context.Context) (*version.Version, error) {
	if v := s.cachedVersion(); v != nil {
		return v, nil
	}
	var v *version.Version
	err := s.WithCursor(ctx, ModePlain, func(cur *Cursor) error {
		var err error
		v, err = s.probeVersion(ctx, cur)
		return err
	})
	return v, err
}

func (s *Store) cachedVersion() *version.Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) probeVersion(ctx context.Context, cur *Cursor) (*version.Version, error) {
	if v := s.cachedVersion(); v != nil {
		return v, nil
	}

	rec, err := cur.queryRow(ctx, &QueryEvent{Operation: "version", Query: s.dialect.VersionQuery})
	if err != nil {
		return nil, err
	}
	v, err := parseServerVersion(rec.At(0))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
	return v, nil
}

// parseServerVersion accepts strings such as "16.2 (Debian 16.2-1)",
// "8.0.36-0ubuntu0.22.04.1" and "3.45.1".
func parseServerVersion(raw any) (*version.Version, error) {
	var text string
	switch r := raw.(type) {
	case string:
		text = r
	case []byte:
		text = string(r)
	default:
		return nil, fmt.Errorf("unexpected server version %v (%T)", raw, raw)
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty server version")
	}
	v, err := version.NewVersion(fields[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse server version %q: %w", text, err)
	}
	return v, nil
}

// checkReturning reports ErrUnsupported when the server cannot return rows
// from insert and update statements.
func (s *Store) checkReturning(ctx context.Context, cur *Cursor) error {
	if !s.dialect.Returning {
		return fmt.Errorf("%w: %s has no returning clause", ErrUnsupported, s.dialect.Name)
	}
	if s.dialect.MinReturningVersion == "" {
		return nil
	}

	v, err := s.probeVersion(ctx, cur)
	if err != nil {
		return err
	}
	minVersion, err := version.NewVersion(s.dialect.MinReturningVersion)
	if err != nil {
		return err
	}
	if v.LessThan(minVersion) {
		return fmt.Errorf("%w: returning requires %s %s, server is %s",
			ErrUnsupported, s.dialect.Name, minVersion, v)
	}
	return nil
}
