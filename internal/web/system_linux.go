//go:build linux

package web

import "golang.org/x/sys/unix"

func snapshotSystem(diskPath string) *SystemSnapshot {
	snap := &SystemSnapshot{LocalAddrs: interfaceAddrs(), DiskPath: diskPath}
	var st unix.Statfs_t
	if err := unix.Statfs(diskPath, &st); err != nil {
		snap.LastError = err.Error()
		return snap
	}
	snap.DiskAvailBytes = st.Bavail * uint64(st.Bsize)
	return snap
}
