package sandbox

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// nobody inside the worker's user namespace
const namespaceUID = 65534

// workerSysProcAttr starts the worker in its own process group. With
// isolateNetwork it also gets fresh user and network namespaces, so the
// only network interface it sees is a down loopback.
func workerSysProcAttr(isolateNetwork bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	if isolateNetwork {
		attr.Cloneflags = uintptr(unix.CLONE_NEWUSER | unix.CLONE_NEWNET)
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: namespaceUID, HostID: os.Getuid(), Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: namespaceUID, HostID: os.Getgid(), Size: 1}}
		attr.GidMappingsEnableSetgroups = false
	}

	return attr
}
