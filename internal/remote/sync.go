package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/sftp"
)

// localEntry describes one path in the local tree being mirrored.
type localEntry struct {
	isDir bool
	mode  os.FileMode
}

// stagePathForTree maps a remote target directory to its slot in the
// staging area, e.g. /etc/nginx/conf.d -> <staging>/trees/etc-nginx-conf.d.
func stagePathForTree(stagingDir, remoteDir string) string {
	key := strings.ReplaceAll(strings.Trim(remoteDir, "/"), "/", "-")
	if key == "" {
		key = "root"
	}
	return path.Join(stagingDir, "trees", key)
}

// stageFile uploads a single local file into the staging area with
// checksum verification and returns the staged path.
func stageFile(ctx context.Context, client *sftp.Client, localPath, remotePath, stagingDir, host string, progress ProgressFunc) (string, error) {
	stagePath := path.Join(stagingDir, "incoming", path.Base(remotePath))
	if err := client.MkdirAll(path.Dir(stagePath)); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	if _, err := uploadFile(ctx, client, localPath, stagePath, host, progress); err != nil {
		return "", err
	}
	return stagePath, nil
}

// mirrorToStaging makes the staging directory an exact copy of
// localDir: stale entries are pruned, then every local file is
// uploaded with checksum verification. Returns total bytes uploaded.
func mirrorToStaging(ctx context.Context, client *sftp.Client, localDir, stage, host string, progress ProgressFunc) (int64, error) {
	manifest, err := loadManifest(localDir)
	if err != nil {
		return 0, err
	}

	if err := client.MkdirAll(stage); err != nil {
		return 0, fmt.Errorf("create staging dir %s: %w", stage, err)
	}

	if err := pruneStaging(client, stage, manifest); err != nil {
		return 0, err
	}

	// Parents sort before children, so directories exist before the
	// files inside them are uploaded.
	rels := make([]string, 0, len(manifest))
	for rel := range manifest {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	var total int64
	for _, rel := range rels {
		entry := manifest[rel]
		rpath := path.Join(stage, rel)
		if entry.isDir {
			if err := client.MkdirAll(rpath); err != nil {
				return total, fmt.Errorf("create dir %s: %w", rpath, err)
			}
			continue
		}
		n, err := uploadFile(ctx, client, filepath.Join(localDir, filepath.FromSlash(rel)), rpath, host, progress)
		total += n
		if err != nil {
			return total, err
		}
		if err := client.Chmod(rpath, entry.mode.Perm()); err != nil {
			return total, fmt.Errorf("chmod %s: %w", rpath, err)
		}
	}

	return total, nil
}

// loadManifest walks the local tree and returns its entries keyed by
// slash-separated relative path. Only regular files and directories
// are supported; anything else fails the sync rather than silently
// producing an incomplete mirror.
func loadManifest(localDir string) (map[string]localEntry, error) {
	manifest := make(map[string]localEntry)
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			manifest[filepath.ToSlash(rel)] = localEntry{isDir: true, mode: info.Mode()}
		case info.Mode().IsRegular():
			manifest[filepath.ToSlash(rel)] = localEntry{mode: info.Mode()}
		default:
			return fmt.Errorf("unsupported entry %s (mode %s)", p, info.Mode())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", localDir, err)
	}
	return manifest, nil
}

// pruneStaging removes staged entries that no longer exist locally,
// or whose kind (file vs directory) changed.
func pruneStaging(client *sftp.Client, stage string, manifest map[string]localEntry) error {
	walker := client.Walk(stage)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return fmt.Errorf("walk staging %s: %w", stage, err)
		}
		p := walker.Path()
		if p == stage {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, stage), "/")
		entry, keep := manifest[rel]
		stat := walker.Stat()
		if keep && entry.isDir == stat.IsDir() {
			continue
		}
		if stat.IsDir() {
			if err := client.RemoveAll(p); err != nil {
				return fmt.Errorf("prune %s: %w", p, err)
			}
			walker.SkipDir()
			continue
		}
		if err := client.Remove(p); err != nil {
			return fmt.Errorf("prune %s: %w", p, err)
		}
	}
	return nil
}

// uploadFile pushes one local file to a remote path over SFTP,
// verifying the write by re-reading the remote file and comparing
// SHA-256 checksums.
func uploadFile(ctx context.Context, client *sftp.Client, localPath, remotePath, host string, progress ProgressFunc) (int64, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer localFile.Close()

	stat, err := localFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", localPath, err)
	}

	remoteFile, err := client.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", remotePath, err)
	}

	hasher := sha256.New()
	pw := newProgressWriter(remoteFile, host, stat.Size(), progress)
	writer := io.MultiWriter(pw, hasher)

	written, err := copyWithContext(ctx, writer, localFile)
	// Close the remote file to flush writes before checksum verification.
	remoteFile.Close()
	if err != nil {
		return written, fmt.Errorf("copy %s: %w", localPath, err)
	}

	localChecksum := hex.EncodeToString(hasher.Sum(nil))
	remoteChecksum, err := remoteSHA256(client, remotePath)
	if err != nil {
		return written, fmt.Errorf("verify %s: %w", remotePath, err)
	}
	if remoteChecksum != localChecksum {
		return written, fmt.Errorf("checksum mismatch on %s: local=%s remote=%s", remotePath, localChecksum, remoteChecksum)
	}

	return written, nil
}

// remoteSHA256 computes the SHA-256 checksum of a remote file by
// reading it back over SFTP, so the host needs no sha256sum binary.
func remoteSHA256(client *sftp.Client, remotePath string) (string, error) {
	f, err := client.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("open remote file for checksum: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("read remote file for checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// copyWithContext copies from src to dst, checking for context cancellation
// periodically via a buffered copy.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
