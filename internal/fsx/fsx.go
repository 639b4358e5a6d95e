// Package fsx wraps the filesystem idioms the watchers depend on: waiting
// for writers to finish, moving folders across mount points, and atomic
// publishes into directories a third party polls.
package fsx

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	pkgerrors "github.com/nestlogic/floorwatch/internal/pkg/errors"
)

const slotPollInterval = 500 * time.Millisecond

// WaitForStableFile polls size and mtime until two consecutive samples match,
// sleeping interval between polls. After attempts polls it returns the last
// stat regardless, so callers proceed with a best-effort read.
func WaitForStableFile(ctx context.Context, path string, attempts int, interval time.Duration) (fs.FileInfo, error) {
	if attempts < 2 {
		attempts = 2
	}
	prev, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	for i := 1; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return prev, ctx.Err()
		case <-time.After(interval):
		}
		cur, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if cur.Size() == prev.Size() && cur.ModTime().Equal(prev.ModTime()) {
			return cur, nil
		}
		prev = cur
	}
	return prev, nil
}

// WaitForFileRelease tries to open path for reading until one attempt
// succeeds. It reports false when every attempt fails, which callers treat
// as "still held by the writer".
func WaitForFileRelease(ctx context.Context, path string, attempts int, interval time.Duration) bool {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(interval):
			}
		}
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			return true
		}
	}
	return false
}

// WaitForSlot polls until path does not exist. When the timeout elapses while
// the path is still present it returns ErrSlotBusy.
func WaitForSlot(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("slot %s still occupied after %s: %w", path, timeout, pkgerrors.ErrSlotBusy)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(slotPollInterval):
		}
	}
}

// MoveFolder relocates source into destRoot, keeping the base name. When the
// destination already exists the new folder gets a millisecond-epoch suffix
// instead of merging. Rename is attempted first; a cross-device error falls
// back to copy-then-delete.
func MoveFolder(source, destRoot string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("stat source %s: %w", source, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source %s is not a directory", source)
	}

	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return "", fmt.Errorf("create dest root %s: %w", destRoot, err)
	}

	dest := filepath.Join(destRoot, filepath.Base(source))
	if _, err := os.Stat(dest); err == nil {
		dest = dest + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	err = os.Rename(source, dest)
	if err == nil {
		return dest, nil
	}
	if !isCrossDevice(err) {
		return "", fmt.Errorf("rename %s -> %s: %w", source, dest, err)
	}

	if err := copyTree(source, dest); err != nil {
		return "", fmt.Errorf("copy %s -> %s: %w", source, dest, err)
	}
	if err := os.RemoveAll(source); err != nil {
		return "", fmt.Errorf("remove source %s after copy: %w", source, err)
	}
	return dest, nil
}

func isCrossDevice(err error) bool {
	return errorIsErrno(err, syscall.EXDEV)
}

func errorIsErrno(err error, target syscall.Errno) bool {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno == target
		}
		switch e := err.(type) {
		case *os.LinkError:
			err = e.Err
		case *os.PathError:
			err = e.Err
		case *os.SyscallError:
			err = e.Err
		default:
			return false
		}
	}
	return false
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteFileAtomic publishes data at path via a temp file and rename, so a
// concurrent poller never observes a half-written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}

// RemoveWithRetry unlinks path, retrying transient failures with a linear
// delay. A missing file counts as success.
func RemoveWithRetry(ctx context.Context, path string, attempts int, interval time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("remove %s: %w", path, lastErr)
}
