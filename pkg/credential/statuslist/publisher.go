// Publication protocol per spec §4.5: an atomic file-replace guarded
// by a sidecar lock file carrying a monotonic version number, so at
// most one publisher writes a given list and publications never go
// backwards in version. Grounded on github.com/gofrs/flock (carried by
// several repos in the retrieval pack, e.g. certenIO-certen-validator
// and google-exposure-notifications-server's go.mod) for the
// exclusive-lock primitive; the teacher's own pkg/tokenstatuslist has
// no publication-protocol equivalent, so this is new infrastructure in
// the teacher's idiom (small, error-wrapped, single-purpose types).
package statuslist

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 50 * time.Millisecond

// Publisher performs at-most-one, version-monotonic publication of a
// status list file guarded by a sidecar ".lock" file.
type Publisher struct {
	listPath string
	lockPath string
}

// NewPublisher creates a Publisher for listPath, using listPath+".lock"
// as the sidecar lock file.
func NewPublisher(listPath string) *Publisher {
	return &Publisher{listPath: listPath, lockPath: listPath + ".lock"}
}

// Publish takes an exclusive lock on the sidecar file, reads its
// recorded version, and if version is strictly greater, runs build to
// produce the new content, writes it atomically to listPath, then
// records version on the lock file. If the recorded version is
// already >= version, Publish is a no-op and returns false.
func (p *Publisher) Publish(ctx context.Context, version uint64, build func() ([]byte, error)) (published bool, err error) {
	lock := flock.New(p.lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return false, fmt.Errorf("statuslist: acquiring publication lock: %w", err)
	}
	if !locked {
		return false, fmt.Errorf("statuslist: could not acquire publication lock")
	}
	defer lock.Unlock()

	recorded, err := readLockVersion(p.lockPath)
	if err != nil {
		return false, err
	}
	if recorded >= version {
		return false, nil
	}

	content, err := build()
	if err != nil {
		return false, fmt.Errorf("statuslist: building publication: %w", err)
	}

	if err := atomicWriteFile(p.listPath, content); err != nil {
		return false, err
	}
	if err := writeLockVersion(p.lockPath, version); err != nil {
		return false, err
	}
	return true, nil
}

func readLockVersion(lockPath string) (uint64, error) {
	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("statuslist: reading lock version: %w", err)
	}
	version, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, nil
	}
	return version, nil
}

func writeLockVersion(lockPath string, version uint64) error {
	if err := os.WriteFile(lockPath, []byte(strconv.FormatUint(version, 10)), 0o644); err != nil {
		return fmt.Errorf("statuslist: recording lock version: %w", err)
	}
	return nil
}

func atomicWriteFile(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("statuslist: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("statuslist: renaming into place: %w", err)
	}
	return nil
}
