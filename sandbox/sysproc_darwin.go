package sandbox

import "syscall"

// workerSysProcAttr starts the worker in its own process group. Namespaces
// do not exist on darwin, so isolateNetwork is ignored.
func workerSysProcAttr(bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
