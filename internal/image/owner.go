package image

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// fallbackID is the Fedora/RHEL default qemu UID/GID, used when no
// qemu user can be discovered at all.
const fallbackID = 107

// qemuOwner determines the UID and GID the QEMU process runs as, so
// disks it must open are chowned accordingly. Strategies, in order:
// the user/group configured in /etc/libvirt/qemu.conf, the common
// qemu/libvirt-qemu accounts, and finally the hardcoded fallback.
func qemuOwner() (uid, gid int, err error) {
	username, groupname := configuredQEMUUser()

	if username != "" {
		if u, lookupErr := user.Lookup(username); lookupErr == nil {
			uid, _ = strconv.Atoi(u.Uid)
			gid, _ = strconv.Atoi(u.Gid)
			if groupname != "" {
				if g, groupErr := user.LookupGroup(groupname); groupErr == nil {
					gid, _ = strconv.Atoi(g.Gid)
				}
			}
			return uid, gid, nil
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, lookupErr := user.Lookup(name); lookupErr == nil {
			uid, _ = strconv.Atoi(u.Uid)
			gid, _ = strconv.Atoi(u.Gid)
			return uid, gid, nil
		}
	}

	return fallbackID, fallbackID, fmt.Errorf("could not determine QEMU user, using fallback UID/GID %d", fallbackID)
}

// configuredQEMUUser reads /etc/libvirt/qemu.conf and extracts the
// configured user and group names. Returns empty strings when the file
// is missing or the settings aren't present.
func configuredQEMUUser() (username, groupname string) {
	file, err := os.Open("/etc/libvirt/qemu.conf")
	if err != nil {
		return "", ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}

	return username, groupname
}
