package aurmake

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
)

// ensureBuildUser makes sure the unprivileged build identity exists,
// provisioning the group and user if needed. makepkg refuses to run as
// root, and untrusted build steps must not run privileged anyway.
func ensureBuildUser(name string, exe *Executor) (*Identity, error) {
	if u, err := user.Lookup(name); err == nil {
		return identityFromUser(u)
	}

	cPrintf(colInfo, "Creating build user '%s'\n", name)
	groupCmd := exec.Command("groupadd", "--system", name)
	if err := exe.Run(groupCmd); err != nil {
		return nil, fmt.Errorf("failed to create group %s: %w", name, err)
	}
	userCmd := exec.Command("useradd", "--system", "-g", name, "-m", "-d", "/var/lib/"+name, name)
	if err := exe.Run(userCmd); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", name, err)
	}

	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("build user %s missing after creation: %w", name, err)
	}
	return identityFromUser(u)
}

func identityFromUser(u *user.User) (*Identity, error) {
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad uid %q for %s: %w", u.Uid, u.Username, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad gid %q for %s: %w", u.Gid, u.Username, err)
	}
	return &Identity{UID: uint32(uid), GID: uint32(gid)}, nil
}

// needsRootPrivileges reports whether the requested operation installs
// packages or writes to system locations.
func needsRootPrivileges(args []string) bool {
	if len(args) < 1 {
		return false
	}
	switch args[0] {
	case "log", "version", "--version", "help", "-h", "--help":
		return false
	}
	return true
}
