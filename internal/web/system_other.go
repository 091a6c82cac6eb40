//go:build !linux

package web

func snapshotSystem(diskPath string) *SystemSnapshot {
	return &SystemSnapshot{LocalAddrs: interfaceAddrs(), DiskPath: diskPath}
}
